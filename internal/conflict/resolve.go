package conflict

import (
	"sort"

	"ringkv/internal/clock"
	"ringkv/internal/record"
)

// Resolve returns the winner of two versions of the same key. The later
// timestamp wins; equal times fall back to the larger origin ID. When both
// timestamps are identical a tombstone beats a value, then the larger value
// bytes win, so the result never depends on argument order.
func Resolve(a, b record.Record) record.Record {
	switch a.Timestamp.Compare(b.Timestamp) {
	case clock.After:
		return a
	case clock.Before:
		return b
	}

	if a.Tombstone != b.Tombstone {
		if a.Tombstone {
			return a
		}
		return b
	}
	if string(b.Value) > string(a.Value) {
		return b
	}
	return a
}

// Reconcile folds Resolve over records. It reports false when records is
// empty.
func Reconcile(records ...record.Record) (record.Record, bool) {
	if len(records) == 0 {
		return record.Record{}, false
	}
	winner := records[0]
	for _, r := range records[1:] {
		winner = Resolve(winner, r)
	}
	return winner, true
}

// Stale returns the replicas, sorted by ID, whose reply orders before the
// winner. A replica that had no version for the key is stale whenever the
// winner exists.
func Stale(winner record.Record, replies map[string]*record.Record) []string {
	stale := make([]string, 0)
	for replicaID, rec := range replies {
		if rec == nil {
			if !winner.Timestamp.IsZero() {
				stale = append(stale, replicaID)
			}
			continue
		}
		if winner.Timestamp.After(rec.Timestamp) {
			stale = append(stale, replicaID)
		}
	}
	sort.Strings(stale)
	return stale
}
