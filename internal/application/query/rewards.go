package query

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// RewardsHandler answers catalog and per-child reward lookups.
type RewardsHandler struct {
	uow     store.UnitOfWorkFactory
	catalog RewardCatalog
}

// NewRewardsHandler creates a new RewardsHandler. A nil catalog reads the store.
func NewRewardsHandler(uow store.UnitOfWorkFactory, catalog RewardCatalog) *RewardsHandler {
	if catalog == nil {
		catalog = NewStoreRewardCatalog(uow)
	}
	return &RewardsHandler{uow: uow, catalog: catalog}
}

// CatalogDTO is a filtered catalog listing.
type CatalogDTO struct {
	Rewards []*reward.Reward `json:"rewards"`
	Total   int              `json:"total"`
}

// List returns the catalog filtered by kind, rarity and redeemability.
func (h *RewardsHandler) List(ctx context.Context, f reward.CatalogFilter) (*CatalogDTO, error) {
	rewards, err := h.catalog.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if rewards == nil {
		rewards = []*reward.Reward{}
	}
	return &CatalogDTO{Rewards: rewards, Total: len(rewards)}, nil
}

// Get returns one reward.
func (h *RewardsHandler) Get(ctx context.Context, id string) (*reward.Reward, error) {
	return h.catalog.Get(ctx, id)
}

// Available splits redeemable in-stock rewards into affordable and upcoming
// against the child's current balance.
func (h *RewardsHandler) Available(ctx context.Context, actor access.Actor, childID string) (*reward.Availability, error) {
	var balance int
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, actor, childID)
		if err != nil {
			return err
		}
		balance = c.PointsBalance
		return nil
	})
	if err != nil {
		return nil, err
	}

	redeemable := true
	rewards, err := h.catalog.List(ctx, reward.CatalogFilter{Redeemable: &redeemable, OnlyInStock: true})
	if err != nil {
		return nil, err
	}
	out := reward.SplitAvailable(rewards, balance)
	return &out, nil
}

// EarnedDTO lists the rewards a child holds.
type EarnedDTO struct {
	ChildID     string               `json:"childId"`
	Redemptions []*reward.Redemption `json:"rewards"`
	Total       int                  `json:"total"`
}

// Earned returns the child's redemptions and awards, newest first.
func (h *RewardsHandler) Earned(ctx context.Context, actor access.Actor, childID string) (*EarnedDTO, error) {
	out := EarnedDTO{ChildID: childID}
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, actor, childID)
		if err != nil {
			return err
		}
		out.Redemptions, err = uow.Redemptions().ListByChild(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Redemptions == nil {
		out.Redemptions = []*reward.Redemption{}
	}
	out.Total = len(out.Redemptions)
	return &out, nil
}
