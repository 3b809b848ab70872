// Package record defines the versioned value stored and exchanged by
// replicas.
package record

import "ringkv/internal/clock"

// Record is one version of a key. A tombstone marks a delete and carries no
// value.
type Record struct {
	Key       string
	Value     []byte
	Timestamp clock.Timestamp
	Tombstone bool
}

// Live reports whether the record holds a value rather than a tombstone.
func (r Record) Live() bool {
	return !r.Tombstone
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	out := r
	if r.Value != nil {
		out.Value = append([]byte(nil), r.Value...)
	}
	return out
}

// Tombstone builds a delete marker for key at ts.
func Tombstone(key string, ts clock.Timestamp) Record {
	return Record{Key: key, Timestamp: ts, Tombstone: true}
}
