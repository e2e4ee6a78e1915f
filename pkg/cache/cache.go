// Package cache provides read-through caching for asset lookups. Entries
// are invalidated after every successful write so a read never observes a
// stale asset once the writing request has returned.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the backend-agnostic interface used by the lifecycle manager.
// A miss is (nil, false, nil); errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching a glob pattern, e.g. "deps:*".
	DeletePattern(ctx context.Context, pattern string) error
}

// Key builders. All asset cache keys live under one of these prefixes so
// pattern invalidation can target a whole family at once.

// AssetIDKey is the cache key for a lookup by asset id.
func AssetIDKey(id string) string { return "asset:id:" + id }

// AssetNameKey is the cache key for a lookup by name and version.
func AssetNameKey(name, version string) string {
	return fmt.Sprintf("asset:nv:%s@%s", name, version)
}

// DepsKey is the cache key for an asset's dependency closure.
func DepsKey(id string) string { return "deps:" + id }
