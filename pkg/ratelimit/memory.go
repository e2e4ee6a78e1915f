package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is an in-process CounterStore for tests and
// single-instance deployments. TTLs are honored lazily on access.
type MemoryCounterStore struct {
	mu      sync.Mutex
	buckets map[string]memoryEntry
}

type memoryEntry struct {
	state     BucketState
	expiresAt time.Time
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{buckets: make(map[string]memoryEntry)}
}

// Update implements CounterStore. The store mutex makes the
// read-modify-write atomic within this process.
func (s *MemoryCounterStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(st *BucketState, exists bool) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.buckets[key]
	if exists && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.buckets, key)
		exists = false
		e = memoryEntry{}
	}

	st := e.state
	if err := fn(&st, exists); err != nil {
		return err
	}

	entry := memoryEntry{state: st}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.buckets[key] = entry
	return nil
}

// Reset drops all buckets. Useful for testing.
func (s *MemoryCounterStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]memoryEntry)
}
