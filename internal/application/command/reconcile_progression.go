package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE PROGRESSION COMMAND
// Re-derives rank and mission progress from approved history. The review
// path already keeps both current; this catches drift left by manual edits
// or partial restores.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	ChildrenChecked   int
	RanksCorrected    int
	ProgressCorrected int
	Failed            int
}

// ReconcileProgressionHandler walks every child.
type ReconcileProgressionHandler struct {
	uow       store.UnitOfWorkFactory
	tracker   *progression.Tracker
	publisher shared.EventPublisher
	pageSize  int
	log       *logger.Logger
}

// NewReconcileProgressionHandler creates a new ReconcileProgressionHandler.
func NewReconcileProgressionHandler(
	uow store.UnitOfWorkFactory,
	tracker *progression.Tracker,
	publisher shared.EventPublisher,
	pageSize int,
	log *logger.Logger,
) *ReconcileProgressionHandler {
	if pageSize <= 0 {
		pageSize = child.DefaultListOptions().Limit
	}
	return &ReconcileProgressionHandler{
		uow:       uow,
		tracker:   tracker,
		publisher: publisher,
		pageSize:  pageSize,
		log:       orNop(log).With(logger.Component("reconcile_progression")),
	}
}

// Handle reconciles all children. A failure on one child is counted and
// logged; the pass continues with the next one.
func (h *ReconcileProgressionHandler) Handle(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	for offset := 0; ; offset += h.pageSize {
		var ids []string
		err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
			var err error
			ids, err = uow.Children().ListIDs(ctx, child.ListOptions{Offset: offset, Limit: h.pageSize})
			return err
		})
		if err != nil {
			return report, fmt.Errorf("list children: %w", err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.ChildrenChecked++

			rankFixed, progressFixed, err := h.reconcileChild(ctx, id)
			switch {
			case errors.Is(err, shared.ErrChildNotFound):
				// Deleted between pages.
			case err != nil:
				report.Failed++
				h.log.Warn("reconcile failed", logger.ChildID(id), logger.Err(err))
			default:
				if rankFixed {
					report.RanksCorrected++
				}
				report.ProgressCorrected += progressFixed
			}
		}

		if len(ids) < h.pageSize {
			break
		}
	}

	h.log.Info("progression reconciled",
		logger.Int("children", report.ChildrenChecked),
		logger.Int("ranks_corrected", report.RanksCorrected),
		logger.Int("progress_corrected", report.ProgressCorrected),
		logger.Int("failed", report.Failed),
	)
	return report, nil
}

func (h *ReconcileProgressionHandler) reconcileChild(ctx context.Context, childID string) (bool, int, error) {
	var (
		rankFixed     bool
		progressFixed int
		events        []shared.Event
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		rankFixed, progressFixed, events = false, 0, events[:0]

		c, err := uow.Children().GetByIDForUpdate(ctx, childID)
		if err != nil {
			return err
		}

		rows, err := uow.Progress().ListByChild(ctx, childID)
		if err != nil {
			return fmt.Errorf("list progress: %w", err)
		}
		for _, p := range rows {
			rec, err := h.tracker.Recompute(ctx, uow, childID, p.MissionID)
			if err != nil {
				return fmt.Errorf("recompute %s: %w", p.MissionID, err)
			}
			if rec.Changed {
				progressFixed++
				h.log.Warn("progress drift corrected",
					logger.ChildID(childID),
					logger.MissionID(p.MissionID),
					logger.Int("was", p.CompletionPercentage),
					logger.Int("now", rec.Progress.CompletionPercentage),
				)
			}
			if rec.Completed {
				events = append(events, shared.NewMissionCompletedEvent(
					p.MissionID, c.ID, c.GuardianID, *rec.Progress.CompletedAt))
			}
		}

		rc, err := progression.SyncRank(ctx, uow, c)
		if err != nil {
			return err
		}
		if rc.Changed {
			rankFixed = true
			h.log.Warn("rank drift corrected",
				logger.ChildID(childID),
				logger.String("was", rc.Previous.String()),
				logger.String("now", rc.Current.String()),
			)
			events = append(events, shared.NewRankChangedEvent(
				c.ID, c.GuardianID, rc.Previous.String(), rc.Current.String()))
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	publishEvents(h.log, h.publisher, events...)
	return rankFixed, progressFixed, nil
}
