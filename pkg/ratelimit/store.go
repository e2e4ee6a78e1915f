// Package ratelimit implements a token-bucket rate limiter backed by a
// shared counter store, so that the same identifier is throttled
// consistently across multiple server instances.
package ratelimit

import (
	"context"
	"time"
)

// BucketState is the persisted state of one token bucket.
type BucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// CounterStore provides the atomic read-modify-write primitive the limiter
// needs. Update must apply fn to the state stored at key as a single atomic
// operation relative to concurrent callers of the same key: implementations
// use compare-and-swap (or equivalent) and retry internally on contention.
// If fn returns an error, no state is committed and that error is returned
// unchanged.
type CounterStore interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn func(st *BucketState, exists bool) error) error
}
