package storage

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zhangyunhao116/skipmap"

	"ringkv/internal/clock"
	"ringkv/internal/conflict"
	"ringkv/internal/record"
)

// lockStripes is the number of per-key mutexes. Keys hashing to the same
// stripe serialize against each other.
const lockStripes = 64

// Store defines the interface for local record storage.
type Store interface {
	// Put merges rec with any existing version and returns the stored winner.
	Put(rec record.Record) record.Record
	// Get returns the stored version of key, tombstones included.
	Get(key string) (record.Record, bool)
	// Delete stores a tombstone for key at ts and returns the stored winner.
	Delete(key string, ts clock.Timestamp) record.Record
	// Len returns the number of stored records, tombstones included.
	Len() int
}

type table = skipmap.FuncMap[string, record.Record]

// InMemoryStore is an ordered in-memory implementation of Store.
// It's safe for concurrent use; operations on one key are serialized.
type InMemoryStore struct {
	data  *table
	locks [lockStripes]sync.Mutex
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: skipmap.NewFunc[string, record.Record](func(a, b string) bool {
			return strings.Compare(a, b) < 0
		}),
	}
}

func (s *InMemoryStore) lockFor(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%lockStripes]
}

// Put stores rec, or the newer of rec and the existing version.
func (s *InMemoryStore) Put(rec record.Record) record.Record {
	mu := s.lockFor(rec.Key)
	mu.Lock()
	defer mu.Unlock()

	incoming := rec.Clone()
	if incoming.Tombstone {
		incoming.Value = nil
	}

	winner := incoming
	if existing, ok := s.data.Load(rec.Key); ok {
		winner = conflict.Resolve(existing, incoming)
	}
	s.data.Store(rec.Key, winner)

	return winner.Clone()
}

// Get retrieves the record for key.
func (s *InMemoryStore) Get(key string) (record.Record, bool) {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	rec, ok := s.data.Load(key)
	if !ok {
		return record.Record{}, false
	}
	// Return a copy to avoid external modifications
	return rec.Clone(), true
}

// Delete writes a tombstone for key.
func (s *InMemoryStore) Delete(key string, ts clock.Timestamp) record.Record {
	return s.Put(record.Tombstone(key, ts))
}

// Len returns the number of records, tombstones included.
func (s *InMemoryStore) Len() int {
	return s.data.Len()
}

// LiveLen returns the number of keys holding a value.
func (s *InMemoryStore) LiveLen() int {
	n := 0
	s.data.Range(func(_ string, rec record.Record) bool {
		if rec.Live() {
			n++
		}
		return true
	})
	return n
}

// Keys returns up to limit live keys in ascending order. A limit <= 0
// returns every live key.
func (s *InMemoryStore) Keys(limit int) []string {
	keys := make([]string, 0)
	s.data.Range(func(key string, rec record.Record) bool {
		if rec.Live() {
			keys = append(keys, key)
		}
		return limit <= 0 || len(keys) < limit
	})
	return keys
}
