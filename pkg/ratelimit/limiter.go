package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/modelpark/asset-registry/pkg/registry"
)

// Limiter is a per-identifier token bucket. Each identifier (user id or
// source address) accrues refillRate tokens per second up to capacity;
// every request spends its cost or is rejected with the wait time until
// the cost becomes available.
type Limiter struct {
	store      CounterStore
	capacity   float64
	refillRate float64
	ttl        time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter allowing maxRequests per window with bursts
// up to maxRequests.
func NewLimiter(store CounterStore, maxRequests int, window time.Duration) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	capacity := float64(maxRequests)
	return &Limiter{
		store:      store,
		capacity:   capacity,
		refillRate: capacity / window.Seconds(),
		// Idle buckets refill completely within one window, so state
		// older than two windows carries no information.
		ttl: 2 * window,
		now: time.Now,
	}
}

// TryAcquire spends cost tokens from the identifier's bucket. On
// exhaustion it returns a RateLimited error carrying the retry-after
// duration; on counter-store failure it returns StoreUnavailable, which
// callers must treat as retryable, never as an implicit allow.
func (l *Limiter) TryAcquire(ctx context.Context, identifier string, cost int) error {
	if cost < 1 {
		cost = 1
	}
	need := float64(cost)

	err := l.store.Update(ctx, identifier, l.ttl, func(st *BucketState, exists bool) error {
		now := l.now()
		if !exists {
			st.Tokens = l.capacity
			st.LastRefill = now
		} else {
			elapsed := now.Sub(st.LastRefill).Seconds()
			if elapsed > 0 {
				st.Tokens = math.Min(l.capacity, st.Tokens+elapsed*l.refillRate)
				st.LastRefill = now
			}
		}

		if st.Tokens < need {
			wait := time.Duration((need - st.Tokens) / l.refillRate * float64(time.Second))
			return registry.NewRateLimitedError(wait)
		}

		st.Tokens -= need
		return nil
	})

	if err == nil {
		return nil
	}
	var rerr *registry.Error
	if errors.As(err, &rerr) && rerr.Code == registry.CodeRateLimited {
		return err
	}
	return registry.NewStoreUnavailableError(err)
}
