package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// keyValue is the subset of Cache the catalog needs.
type keyValue interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD CATALOG CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RewardCatalog is a read-through cache in front of a query.RewardCatalog.
// Concurrent misses for the same key share one load. Redis failures degrade
// to direct reads.
type RewardCatalog struct {
	next  query.RewardCatalog
	kv    keyValue
	ttl   time.Duration
	group singleflight.Group
	log   *logger.Logger
}

var _ query.RewardCatalog = (*RewardCatalog)(nil)

// NewRewardCatalog wraps next with the Redis cache.
func NewRewardCatalog(cache *Cache, next query.RewardCatalog, ttl time.Duration, log *logger.Logger) *RewardCatalog {
	return newRewardCatalog(cache, next, ttl, log)
}

func newRewardCatalog(kv keyValue, next query.RewardCatalog, ttl time.Duration, log *logger.Logger) *RewardCatalog {
	if ttl <= 0 {
		ttl = TTLRewardCatalog
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RewardCatalog{
		next: next,
		kv:   kv,
		ttl:  ttl,
		log:  log.With(logger.Component("reward_catalog_cache")),
	}
}

// List returns the filtered catalog.
func (c *RewardCatalog) List(ctx context.Context, f reward.CatalogFilter) ([]*reward.Reward, error) {
	redeemable := ""
	if f.Redeemable != nil {
		redeemable = strconv.FormatBool(*f.Redeemable)
	}
	key := RewardListKey(string(f.Kind), string(f.Rarity), redeemable, f.OnlyInStock)

	var cached []*reward.Reward
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		list, err := c.next.List(ctx, f)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*reward.Reward), nil
}

// Get returns a reward by id. Misses in the underlying catalog are not cached.
func (c *RewardCatalog) Get(ctx context.Context, id string) (*reward.Reward, error) {
	key := RewardKey(id)

	var cached reward.Reward
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		rw, err := c.next.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, rw)
		return rw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*reward.Reward), nil
}

// Invalidate drops every cached catalog read.
func (c *RewardCatalog) Invalidate(ctx context.Context) error {
	return c.kv.DeleteByPattern(ctx, PrefixRewards+"*")
}

// Register invalidates the cache whenever stock may have changed.
func (c *RewardCatalog) Register(sub shared.EventSubscriber) error {
	handler := func(e shared.Event) error {
		if err := c.Invalidate(context.Background()); err != nil {
			c.log.Warn("catalog invalidation failed",
				logger.String("event", string(e.EventType())),
				logger.Err(err),
			)
		}
		return nil
	}
	for _, t := range []shared.EventType{shared.EventRewardRedeemed, shared.EventRewardAwarded} {
		if err := sub.Subscribe(t, handler); err != nil {
			return err
		}
	}
	return nil
}

func (c *RewardCatalog) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := c.kv.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("catalog cache read failed", logger.String("key", key), logger.Err(err))
	}
	return false
}

func (c *RewardCatalog) store(ctx context.Context, key string, value interface{}) {
	if err := c.kv.Set(ctx, key, value, c.ttl); err != nil {
		c.log.Warn("catalog cache write failed", logger.String("key", key), logger.Err(err))
	}
}
