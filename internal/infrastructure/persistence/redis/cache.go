// Package redis holds the optional Redis layer of the Luz engine: a
// read-through cache for the reward catalog and one-shot keys that make
// redemption requests idempotent. Nothing here is a source of truth; a Redis
// outage degrades to direct store reads and disables deduplication.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig targets a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

var (
	// ErrCacheMiss means the key is absent or expired.
	ErrCacheMiss = errors.New("cache: miss")

	ErrCacheConnection = errors.New("cache: connection failed")
	ErrCacheCodec      = errors.New("cache: codec failed")
	ErrCacheKey        = errors.New("cache: invalid key or ttl")
)

// ─────────────────────────────────────────────────────────────────────────────
// Keys
// ─────────────────────────────────────────────────────────────────────────────

const (
	PrefixRewards     = "luz:rewards:"
	PrefixIdempotency = "luz:idem:"

	// TTLRewardCatalog bounds staleness when an invalidation is lost.
	TTLRewardCatalog = 5 * time.Minute
	// TTLIdempotency is how long a used request key is remembered.
	TTLIdempotency = 24 * time.Hour
)

func RewardKey(id string) string { return PrefixRewards + "id:" + id }

// RewardListKey encodes a catalog filter. Empty values mean "any".
func RewardListKey(kind, rarity, redeemable string, onlyInStock bool) string {
	var b strings.Builder
	b.WriteString(PrefixRewards)
	b.WriteString("list:kind=")
	b.WriteString(kind)
	b.WriteString("&rarity=")
	b.WriteString(rarity)
	b.WriteString("&redeemable=")
	b.WriteString(redeemable)
	if onlyInStock {
		b.WriteString("&stock")
	}
	return b.String()
}

func IdempotencyKey(key string) string { return PrefixIdempotency + key }

// ─────────────────────────────────────────────────────────────────────────────
// Cache
// ─────────────────────────────────────────────────────────────────────────────

// scanBatch is the SCAN COUNT hint and the UNLINK batch size.
const scanBatch = 100

// Cache stores JSON-encoded values.
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings within DialTimeout.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheConnection, cfg.Addr, err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

// Ping implements the health check.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Set stores value under key. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(key, value, ttl)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(key, value, ttl)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// Get decodes the value under key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKey
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCacheCodec, key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and unlinks matches in
// batches, so a large catalog never blocks the server.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKey
	}

	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Unlink(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

func encode(key string, value interface{}, ttl time.Duration) ([]byte, error) {
	if key == "" || ttl < 0 {
		return nil, ErrCacheKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheCodec, key, err)
	}
	return data, nil
}
