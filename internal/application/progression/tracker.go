package progression

import (
	"context"
	"fmt"

	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSION PROGRESS TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Recomputed is the outcome of a progress recompute.
type Recomputed struct {
	Progress *mission.Progress

	// Changed reports whether the stored row was written.
	Changed bool

	// Completed is true only on the call that first reached 100%.
	Completed bool
}

// Tracker aggregates approved submissions into mission progress.
type Tracker struct {
	clock shared.Clock
}

// NewTracker creates a new Tracker.
func NewTracker(clock shared.Clock) *Tracker {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Tracker{clock: clock}
}

// Recompute sets completion = round(approved / total * 100) for the pair,
// creating the row on first call. Running it again over the same approved
// set writes nothing.
func (t *Tracker) Recompute(ctx context.Context, uow store.UnitOfWork, childID, missionID string) (Recomputed, error) {
	m, err := uow.Missions().GetByID(ctx, missionID)
	if err != nil {
		return Recomputed{}, err
	}

	approved, err := uow.Submissions().CountApprovedInMission(ctx, childID, missionID)
	if err != nil {
		return Recomputed{}, fmt.Errorf("count approved: %w", err)
	}

	pct, err := mission.CompletionPercentage(approved, m.TotalChallenges())
	if err != nil {
		return Recomputed{}, err
	}

	now := t.clock.Now()
	created := false
	p, err := uow.Progress().Get(ctx, childID, missionID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return Recomputed{}, err
		}
		p = mission.NewProgress(childID, missionID, now)
		created = true
	}

	changed, completed := p.Apply(pct, now)
	if changed || created {
		if err := uow.Progress().Upsert(ctx, p); err != nil {
			return Recomputed{}, fmt.Errorf("upsert progress: %w", err)
		}
	}

	return Recomputed{Progress: p, Changed: changed || created, Completed: completed}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK SYNC
// ══════════════════════════════════════════════════════════════════════════════

// RankChange describes the result of a rank sync.
type RankChange struct {
	Previous rank.Rank
	Current  rank.Rank
	Changed  bool
}

// SyncRank re-derives the child's rank from approved history and persists it
// if it moved. Rank is never written from anywhere else.
func SyncRank(ctx context.Context, uow store.UnitOfWork, c *child.Child) (RankChange, error) {
	h, err := uow.Submissions().ApprovedHistory(ctx, c.ID)
	if err != nil {
		return RankChange{}, fmt.Errorf("load approved history: %w", err)
	}

	prev, changed := c.SyncRank(h)
	if changed {
		if err := uow.Children().UpdateRank(ctx, c.ID, c.Rank); err != nil {
			return RankChange{}, fmt.Errorf("update rank: %w", err)
		}
	}
	return RankChange{Previous: prev, Current: c.Rank, Changed: changed}, nil
}
