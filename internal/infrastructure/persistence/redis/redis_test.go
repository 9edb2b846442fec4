package redis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return errors.New("connection refused")
	}
	b, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.data[key] = b
	f.mu.Unlock()
	return nil
}

func (f *fakeKV) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
		}
	}
	return nil
}

type countingCatalog struct {
	lists atomic.Int32
	gets  atomic.Int32
	gate  chan struct{}
	items []*reward.Reward
}

func (c *countingCatalog) List(_ context.Context, f reward.CatalogFilter) ([]*reward.Reward, error) {
	c.lists.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	out := make([]*reward.Reward, 0)
	for _, r := range c.items {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *countingCatalog) Get(_ context.Context, id string) (*reward.Reward, error) {
	c.gets.Add(1)
	for _, r := range c.items {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, shared.ErrRewardNotFound
}

type recordingSubscriber struct {
	handlers map[shared.EventType]shared.EventHandler
}

func (s *recordingSubscriber) Subscribe(t shared.EventType, h shared.EventHandler) error {
	s.handlers[t] = h
	return nil
}

func (s *recordingSubscriber) SubscribeAll(shared.EventHandler) error { return nil }

func catalogItems() []*reward.Reward {
	stock := 3
	return []*reward.Reward{
		{ID: "r-1", Code: "AVATAR", Kind: reward.KindDigital, Rarity: reward.RarityCommon, Cost: 50, Redeemable: true},
		{ID: "r-2", Code: "MAP", Kind: reward.KindPhysical, Rarity: reward.RarityRare, Cost: 250, Redeemable: true, RemainingStock: &stock},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRewardCatalog_ReadThrough(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{items: catalogItems()}
	c := newRewardCatalog(newFakeKV(), next, time.Minute, nil)

	first, err := c.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)
	second, err := c.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first[1].Code, second[1].Code)
	require.NotNil(t, second[1].RemainingStock)
	assert.Equal(t, 3, *second[1].RemainingStock)
	assert.Equal(t, int32(1), next.lists.Load())

	// A different filter is a different key.
	physical, err := c.List(ctx, reward.CatalogFilter{Kind: reward.KindPhysical})
	require.NoError(t, err)
	assert.Len(t, physical, 1)
	assert.Equal(t, int32(2), next.lists.Load())
}

func TestRewardCatalog_GetDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{items: catalogItems()}
	c := newRewardCatalog(newFakeKV(), next, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrRewardNotFound)
	}
	assert.Equal(t, int32(2), next.gets.Load())

	for i := 0; i < 2; i++ {
		rw, err := c.Get(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, "AVATAR", rw.Code)
	}
	assert.Equal(t, int32(3), next.gets.Load())
}

func TestRewardCatalog_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{items: catalogItems(), gate: make(chan struct{})}
	c := newRewardCatalog(newFakeKV(), next, time.Minute, nil)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := c.List(ctx, reward.CatalogFilter{})
			return err
		})
	}
	// Let the callers pile up behind the first load.
	time.Sleep(50 * time.Millisecond)
	close(next.gate)
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, next.lists.Load(), int32(2))
}

func TestRewardCatalog_DegradesWhenRedisFails(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.failGet = true
	next := &countingCatalog{items: catalogItems()}
	c := newRewardCatalog(kv, next, time.Minute, nil)

	list, err := c.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRewardCatalog_InvalidatedByRewardEvents(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{items: catalogItems()}
	c := newRewardCatalog(newFakeKV(), next, time.Minute, nil)
	sub := &recordingSubscriber{handlers: make(map[shared.EventType]shared.EventHandler)}
	require.NoError(t, c.Register(sub))
	require.Contains(t, sub.handlers, shared.EventRewardRedeemed)
	require.Contains(t, sub.handlers, shared.EventRewardAwarded)

	_, err := c.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)

	ev := shared.NewRewardGrantedEvent(shared.EventRewardRedeemed, "red-1", "child-1", "g-1", "r-2", "MAP", "Mapa", "PHYSICAL", 250)
	require.NoError(t, sub.handlers[shared.EventRewardRedeemed](ev))

	_, err = c.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.lists.Load())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "luz:rewards:id:r-1", RewardKey("r-1"))
	assert.Equal(t, "luz:rewards:list:kind=BADGE&rarity=&redeemable=false", RewardListKey("BADGE", "", "false", false))
	assert.NotEqual(t, RewardListKey("", "", "", false), RewardListKey("", "", "", true))
	assert.Equal(t, "luz:idem:redeem:u-1:k", IdempotencyKey("redeem:u-1:k"))
}

// ══════════════════════════════════════════════════════════════════════════════
// INTEGRATION
// Run with TEST_REDIS_ADDR=localhost:6379 against a disposable database.
// ══════════════════════════════════════════════════════════════════════════════

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.DB = 15
	c, err := NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.DeleteByPattern(context.Background(), "luz:*"))
	return c
}

func TestIntegration_IdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	g := NewIdempotencyGuard(newTestCache(t))

	ok, err := g.Acquire(ctx, "redeem:u-1:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "redeem:u-1:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, "redeem:u-1:abc"))
	ok, err = g.Acquire(ctx, "redeem:u-1:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIntegration_CacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var rw reward.Reward
	assert.ErrorIs(t, c.Get(ctx, RewardKey("r-1"), &rw), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, RewardKey("r-1"), catalogItems()[0], time.Minute))
	require.NoError(t, c.Get(ctx, RewardKey("r-1"), &rw))
	assert.Equal(t, "AVATAR", rw.Code)

	require.NoError(t, c.DeleteByPattern(ctx, PrefixRewards+"*"))
	assert.ErrorIs(t, c.Get(ctx, RewardKey("r-1"), &rw), ErrCacheMiss)
}
