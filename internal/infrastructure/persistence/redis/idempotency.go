package redis

import (
	"context"
	"time"
)

// IdempotencyGuard remembers request keys with SET NX.
type IdempotencyGuard struct {
	cache *Cache
}

// NewIdempotencyGuard creates an IdempotencyGuard.
func NewIdempotencyGuard(cache *Cache) *IdempotencyGuard {
	return &IdempotencyGuard{cache: cache}
}

// Acquire claims key for ttl. It returns false when the key is already held.
func (g *IdempotencyGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return g.cache.SetNX(ctx, IdempotencyKey(key), time.Now().UTC(), ttl)
}

// Release frees key so a failed request can be retried with it.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	return g.cache.Delete(ctx, IdempotencyKey(key))
}
