// Package conflict resolves divergent versions of a key with a
// last-writer-wins rule over clock.Timestamp. Tombstones take part exactly
// like values, so a later delete beats an earlier write and the reverse.
package conflict
