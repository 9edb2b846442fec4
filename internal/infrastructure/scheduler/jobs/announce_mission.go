package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// AnnounceMissionJob tells every guardian about the month's mission. It runs
// once per period; later runs in the same process for the same period are
// no-ops.
type AnnounceMissionJob struct {
	uow        store.UnitOfWorkFactory
	dispatcher notification.Dispatcher
	location   *time.Location
	clock      shared.Clock
	pageSize   int
	logger     *slog.Logger

	mu        sync.Mutex
	announced map[mission.Period]bool
}

// NewAnnounceMissionJob creates the job.
func NewAnnounceMissionJob(
	uow store.UnitOfWorkFactory,
	dispatcher notification.Dispatcher,
	location *time.Location,
	clock shared.Clock,
	logger *slog.Logger,
) *AnnounceMissionJob {
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnounceMissionJob{
		uow:        uow,
		dispatcher: dispatcher,
		location:   location,
		clock:      clock,
		pageSize:   child.DefaultListOptions().Limit,
		logger:     logger,
		announced:  make(map[mission.Period]bool),
	}
}

// Name implements scheduler.Job.
func (j *AnnounceMissionJob) Name() string { return "announce_mission" }

// Description implements scheduler.Job.
func (j *AnnounceMissionJob) Description() string {
	return "Notifies guardians that the monthly mission is available"
}

// Run implements scheduler.Job.
func (j *AnnounceMissionJob) Run(ctx context.Context) error {
	period := mission.PeriodOf(j.clock.Now(), j.location)

	j.mu.Lock()
	done := j.announced[period]
	j.mu.Unlock()
	if done {
		return nil
	}

	var m *mission.Mission
	err := store.Read(ctx, j.uow, func(uow store.UnitOfWork) error {
		var err error
		m, err = uow.Missions().GetByPeriod(ctx, period)
		return err
	})
	if errors.Is(err, shared.ErrMissionNotFound) {
		j.logger.Info("no mission published yet", "period", period.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load mission: %w", err)
	}

	var sent, failed int
	for offset := 0; ; offset += j.pageSize {
		children, more, err := j.page(ctx, offset)
		if err != nil {
			return fmt.Errorf("list children: %w", err)
		}
		for _, c := range children {
			if err := ctx.Err(); err != nil {
				return err
			}
			status := j.dispatcher.Dispatch(ctx, notification.Message{
				RecipientID: c.GuardianID,
				Kind:        notification.KindMissionReleased,
				Payload: map[string]string{
					"childId":      c.ID,
					"childName":    displayName(c),
					"missionTitle": m.Title,
				},
			})
			switch {
			case status.Delivered:
				sent++
			case !status.Skipped:
				failed++
			}
		}
		if !more {
			break
		}
	}

	j.mu.Lock()
	j.announced[period] = true
	j.mu.Unlock()

	j.logger.Info("mission announced",
		"period", period.String(),
		"mission_id", m.ID,
		"sent", sent,
		"failed", failed,
	)
	return nil
}

// page loads one page of children. more is false on the last page.
func (j *AnnounceMissionJob) page(ctx context.Context, offset int) ([]*child.Child, bool, error) {
	var (
		children []*child.Child
		more     bool
	)
	err := store.Read(ctx, j.uow, func(uow store.UnitOfWork) error {
		ids, err := uow.Children().ListIDs(ctx, child.ListOptions{Offset: offset, Limit: j.pageSize})
		if err != nil {
			return err
		}
		more = len(ids) == j.pageSize
		children = make([]*child.Child, 0, len(ids))
		for _, id := range ids {
			c, err := uow.Children().GetByID(ctx, id)
			if errors.Is(err, shared.ErrChildNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			children = append(children, c)
		}
		return nil
	})
	return children, more, err
}

func displayName(c *child.Child) string {
	if c.AlterEgoName != "" {
		return c.AlterEgoName
	}
	return c.DisplayName
}
