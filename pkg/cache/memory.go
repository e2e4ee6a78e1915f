package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// memEntry holds a cached value with its expiration and insertion time.
type memEntry struct {
	value      []byte
	expiresAt  time.Time
	insertedAt time.Time
}

// Memory is a thread-safe in-process Cache with per-entry TTL and
// max-size eviction. When the cache reaches maxSize, the oldest entry (by
// insertion time) is evicted to make room. Expired entries are lazily
// evicted on Get. Suitable for single-instance deployments and tests;
// multi-instance deployments should use the Redis backend so
// invalidations reach every replica.
type Memory struct {
	mu      sync.Mutex
	items   map[string]*memEntry
	maxSize int
}

// NewMemory creates an in-process cache holding at most maxSize entries.
func NewMemory(maxSize int) *Memory {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Memory{
		items:   make(map[string]*memEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = &memEntry{
		value:      value,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
	}
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

func (c *Memory) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
		}
	}
	return nil
}

// Size returns the number of entries currently held (including expired
// ones not yet lazily cleaned). Used by tests.
func (c *Memory) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *Memory) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
