package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casRetries bounds the optimistic-transaction retry loop. A lost race
// retries the read-modify-write; it never double-spends tokens.
const casRetries = 8

// RedisCounterStore stores bucket state in Redis, using WATCH/MULTI
// optimistic transactions for the compare-and-swap.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore creates a counter store on the given client. Keys
// are namespaced under prefix (default "ratelimit").
func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

// Update implements CounterStore. The WATCH guarantees that if another
// caller commits the same key between our read and our write, the
// transaction fails and we retry with fresh state.
func (s *RedisCounterStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(st *BucketState, exists bool) error) error {
	fullKey := s.prefix + ":" + key

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, fullKey).Bytes()
		exists := true
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return fmt.Errorf("read bucket %s: %w", fullKey, err)
			}
			exists = false
		}

		var st BucketState
		if exists {
			if err := json.Unmarshal(raw, &st); err != nil {
				// Corrupt state is replaced rather than wedging the key.
				exists = false
			}
		}

		if err := fn(&st, exists); err != nil {
			return err
		}

		out, err := json.Marshal(&st)
		if err != nil {
			return fmt.Errorf("encode bucket %s: %w", fullKey, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, out, ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casRetries; i++ {
		err = s.client.Watch(ctx, txn, fullKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("bucket %s: too much contention: %w", fullKey, err)
}
