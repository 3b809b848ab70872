// Package replication coordinates reads, writes and deletes across the
// replica set of a key. The coordinator takes one ring snapshot per
// operation, stamps writes with the node clock, fans the call out through
// package quorum and resolves read replies with package conflict.
package replication
