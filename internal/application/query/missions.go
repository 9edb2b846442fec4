package query

import (
	"context"
	"time"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSION QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// MissionDTO is a mission with its ordered challenges.
type MissionDTO struct {
	*mission.Mission
	Challenges []*mission.Challenge `json:"challenges"`
}

// MissionsHandler answers mission lookups.
type MissionsHandler struct {
	catalog  mission.Catalog
	clock    shared.Clock
	location *time.Location
}

// NewMissionsHandler creates a new MissionsHandler. The current month is
// evaluated in loc.
func NewMissionsHandler(catalog mission.Catalog, clock shared.Clock, loc *time.Location) *MissionsHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &MissionsHandler{catalog: catalog, clock: clock, location: loc}
}

// Current returns the mission of the current month.
func (h *MissionsHandler) Current(ctx context.Context) (*MissionDTO, error) {
	return h.ByPeriod(ctx, mission.PeriodOf(h.clock.Now(), h.location))
}

// ByPeriod returns the mission of the given month.
func (h *MissionsHandler) ByPeriod(ctx context.Context, p mission.Period) (*MissionDTO, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m, err := h.catalog.GetByPeriod(ctx, p)
	if err != nil {
		return nil, err
	}
	challenges, err := h.catalog.ListChallenges(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &MissionDTO{Mission: m, Challenges: challenges}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHILD PROGRESS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLedgerHistory is how many ledger entries the progress view shows.
const DefaultLedgerHistory = 20

// ProgressDTO summarizes a child's standing.
type ProgressDTO struct {
	ChildID       string              `json:"childId"`
	PointsBalance int                 `json:"pointsBalance"`
	Rank          rank.Rank           `json:"rank"`
	NextRank      *rank.Threshold     `json:"nextRank,omitempty"`
	History       rank.History        `json:"history"`
	Missions      []*mission.Progress `json:"missions"`
	Ledger        []*ledger.Entry     `json:"ledger"`
}

// ProgressHandler answers child progress lookups.
type ProgressHandler struct {
	uow store.UnitOfWorkFactory
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(uow store.UnitOfWorkFactory) *ProgressHandler {
	return &ProgressHandler{uow: uow}
}

// Handle returns balance, rank, mission progress and recent ledger entries.
func (h *ProgressHandler) Handle(ctx context.Context, actor access.Actor, childID string) (*ProgressDTO, error) {
	var out ProgressDTO
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, actor, childID)
		if err != nil {
			return err
		}
		out.ChildID = c.ID
		out.PointsBalance = c.PointsBalance
		out.Rank = c.Rank
		if next, ok := rank.Next(c.Rank); ok {
			out.NextRank = &next
		}

		if out.History, err = uow.Submissions().ApprovedHistory(ctx, c.ID); err != nil {
			return err
		}
		if out.Missions, err = uow.Progress().ListByChild(ctx, c.ID); err != nil {
			return err
		}
		out.Ledger, err = uow.Ledger().History(ctx, c.ID, DefaultLedgerHistory)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Missions == nil {
		out.Missions = []*mission.Progress{}
	}
	if out.Ledger == nil {
		out.Ledger = []*ledger.Entry{}
	}
	return &out, nil
}
