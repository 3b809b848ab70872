// Package ring implements the consistent hashing ring.
// A Ring is an immutable snapshot of node positions; replica sets are a pure
// function of (key, snapshot, N), so concurrent coordinators holding the same
// snapshot always agree on placement.
package ring
