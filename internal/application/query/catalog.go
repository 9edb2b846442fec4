// Package query contains read operations (CQRS - Queries).
// Queries open a read-only unit of work and never mutate state.
package query

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG READERS
// Store-backed readers for immutable or slowly changing catalog data.
// Caching decorators in infrastructure wrap these.
// ══════════════════════════════════════════════════════════════════════════════

// RewardCatalog reads the reward catalog.
type RewardCatalog interface {
	List(ctx context.Context, f reward.CatalogFilter) ([]*reward.Reward, error)
	Get(ctx context.Context, id string) (*reward.Reward, error)
}

// StoreRewardCatalog reads rewards straight from the store.
type StoreRewardCatalog struct {
	uow store.UnitOfWorkFactory
}

// NewStoreRewardCatalog creates a new StoreRewardCatalog.
func NewStoreRewardCatalog(uow store.UnitOfWorkFactory) *StoreRewardCatalog {
	return &StoreRewardCatalog{uow: uow}
}

// List returns the filtered catalog in display order.
func (c *StoreRewardCatalog) List(ctx context.Context, f reward.CatalogFilter) ([]*reward.Reward, error) {
	var out []*reward.Reward
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Rewards().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	reward.SortCatalog(out)
	return out, nil
}

// Get returns a reward by id.
func (c *StoreRewardCatalog) Get(ctx context.Context, id string) (*reward.Reward, error) {
	var out *reward.Reward
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Rewards().GetByID(ctx, id)
		return err
	})
	return out, err
}

// StoreMissionCatalog implements mission.Catalog over the store.
type StoreMissionCatalog struct {
	uow store.UnitOfWorkFactory
}

var _ mission.Catalog = (*StoreMissionCatalog)(nil)

// NewStoreMissionCatalog creates a new StoreMissionCatalog.
func NewStoreMissionCatalog(uow store.UnitOfWorkFactory) *StoreMissionCatalog {
	return &StoreMissionCatalog{uow: uow}
}

// GetByID returns a mission.
func (c *StoreMissionCatalog) GetByID(ctx context.Context, id string) (*mission.Mission, error) {
	var out *mission.Mission
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Missions().GetByID(ctx, id)
		return err
	})
	return out, err
}

// GetByPeriod returns the mission of a month.
func (c *StoreMissionCatalog) GetByPeriod(ctx context.Context, p mission.Period) (*mission.Mission, error) {
	var out *mission.Mission
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Missions().GetByPeriod(ctx, p)
		return err
	})
	return out, err
}

// GetChallenge returns a challenge.
func (c *StoreMissionCatalog) GetChallenge(ctx context.Context, id string) (*mission.Challenge, error) {
	var out *mission.Challenge
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Missions().GetChallenge(ctx, id)
		return err
	})
	return out, err
}

// ListChallenges returns the challenges of a mission in order.
func (c *StoreMissionCatalog) ListChallenges(ctx context.Context, missionID string) ([]*mission.Challenge, error) {
	var out []*mission.Challenge
	err := store.Read(ctx, c.uow, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Missions().ListChallenges(ctx, missionID)
		return err
	})
	return out, err
}
