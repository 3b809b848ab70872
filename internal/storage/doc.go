// Package storage provides the per-node record table. Writes merge with the
// existing version through conflict.Resolve, and deletes are stored as
// tombstones so they can still win or lose against concurrent writes.
package storage
