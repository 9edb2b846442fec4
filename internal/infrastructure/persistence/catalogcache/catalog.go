// Package catalogcache keeps published missions and challenges in process.
// A mission never changes once published, so entries need no expiry; the
// LRU bound only caps memory. Lookups that fail are not cached, which lets a
// month's mission appear as soon as it is published.
package catalogcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
)

// DefaultSize holds a few years of missions with their challenges.
const DefaultSize = 1024

// Catalog is an LRU decorator over mission.Catalog.
type Catalog struct {
	next  mission.Catalog
	cache *lru.Cache
}

var _ mission.Catalog = (*Catalog)(nil)

// New wraps next. size <= 0 selects DefaultSize.
func New(next mission.Catalog, size int) (*Catalog, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("catalogcache: %w", err)
	}
	return &Catalog{next: next, cache: cache}, nil
}

func missionKey(id string) string       { return "m:" + id }
func periodKey(p mission.Period) string { return "p:" + p.String() }
func challengeKey(id string) string     { return "c:" + id }
func challengeListKey(id string) string { return "l:" + id }

// GetByID returns a published mission.
func (c *Catalog) GetByID(ctx context.Context, id string) (*mission.Mission, error) {
	if v, ok := c.cache.Get(missionKey(id)); ok {
		return copyMission(v.(*mission.Mission)), nil
	}
	m, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(missionKey(id), copyMission(m))
	return m, nil
}

// GetByPeriod returns the mission published for p.
func (c *Catalog) GetByPeriod(ctx context.Context, p mission.Period) (*mission.Mission, error) {
	if v, ok := c.cache.Get(periodKey(p)); ok {
		return copyMission(v.(*mission.Mission)), nil
	}
	m, err := c.next.GetByPeriod(ctx, p)
	if err != nil {
		return nil, err
	}
	stored := copyMission(m)
	c.cache.Add(periodKey(p), stored)
	c.cache.Add(missionKey(m.ID), stored)
	return m, nil
}

// GetChallenge returns a challenge.
func (c *Catalog) GetChallenge(ctx context.Context, id string) (*mission.Challenge, error) {
	if v, ok := c.cache.Get(challengeKey(id)); ok {
		return copyChallenge(v.(*mission.Challenge)), nil
	}
	ch, err := c.next.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(challengeKey(id), copyChallenge(ch))
	return ch, nil
}

// ListChallenges returns the challenges of a mission in order.
func (c *Catalog) ListChallenges(ctx context.Context, missionID string) ([]*mission.Challenge, error) {
	if v, ok := c.cache.Get(challengeListKey(missionID)); ok {
		return copyChallenges(v.([]*mission.Challenge)), nil
	}
	list, err := c.next.ListChallenges(ctx, missionID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(challengeListKey(missionID), copyChallenges(list))
	return list, nil
}

// Len reports the number of cached entries.
func (c *Catalog) Len() int {
	return c.cache.Len()
}

// Purge drops every cached entry.
func (c *Catalog) Purge() {
	c.cache.Purge()
}

func copyMission(m *mission.Mission) *mission.Mission {
	cp := *m
	cp.ChallengeIDs = append([]string(nil), m.ChallengeIDs...)
	return &cp
}

func copyChallenge(ch *mission.Challenge) *mission.Challenge {
	cp := *ch
	cp.AllowedProofKinds = append([]mission.ProofKind(nil), ch.AllowedProofKinds...)
	return &cp
}

func copyChallenges(list []*mission.Challenge) []*mission.Challenge {
	out := make([]*mission.Challenge, len(list))
	for i, ch := range list {
		out[i] = copyChallenge(ch)
	}
	return out
}
