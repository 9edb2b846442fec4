package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE CHILD PROFILE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UpdateChildProfileCommand is a partial profile update. Nil fields are left
// unchanged; an empty avatar or country clears it.
type UpdateChildProfileCommand struct {
	Actor       access.Actor
	ChildID     string
	Name        *string
	Age         *int
	AvatarURL   *string
	CountryCode *string
}

// Validate validates the command.
func (c UpdateChildProfileCommand) Validate() error {
	if err := required("child", "UpdateProfile", "childId", c.ChildID); err != nil {
		return err
	}
	if c.update().IsEmpty() {
		return shared.NewDomainError("child", "UpdateProfile", shared.ErrValidation, "no fields to update")
	}
	return nil
}

func (c UpdateChildProfileCommand) update() child.ProfileUpdate {
	return child.ProfileUpdate{
		DisplayName: c.Name,
		AgeYears:    c.Age,
		AvatarURL:   c.AvatarURL,
		CountryCode: c.CountryCode,
	}
}

// ChildProfileResult is the child after the update.
type ChildProfileResult struct {
	Child   *child.Child
	Changes child.ProfileChanges
}

// UpdateChildProfileHandler handles UpdateChildProfileCommand.
type UpdateChildProfileHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewUpdateChildProfileHandler creates a new UpdateChildProfileHandler.
func NewUpdateChildProfileHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *UpdateChildProfileHandler {
	return &UpdateChildProfileHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("update_child_profile")),
	}
}

// Handle executes the command. An age change tightens the safety settings
// to the new age group; it never relaxes them.
func (h *UpdateChildProfileHandler) Handle(ctx context.Context, cmd UpdateChildProfileCommand) (*ChildProfileResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result ChildProfileResult
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}

		changes, err := c.UpdateProfile(cmd.update(), h.clock.Now())
		if err != nil {
			return err
		}
		if len(changes.Fields) > 0 {
			if err := uow.Children().UpdateProfile(ctx, c); err != nil {
				return err
			}
		}
		result = ChildProfileResult{Child: c, Changes: changes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("child profile updated",
		logger.ChildID(cmd.ChildID),
		logger.Any("changed", result.Changes.Fields),
		logger.Any("safety_tightened", result.Changes.Safety),
	)
	return &result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE CHILD COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// DeleteChildCommand removes a child with all submissions, progress and
// redemptions.
type DeleteChildCommand struct {
	Actor   access.Actor
	ChildID string
}

// DeleteChildHandler handles DeleteChildCommand.
type DeleteChildHandler struct {
	uow store.UnitOfWorkFactory
	log *logger.Logger
}

// NewDeleteChildHandler creates a new DeleteChildHandler.
func NewDeleteChildHandler(uow store.UnitOfWorkFactory, log *logger.Logger) *DeleteChildHandler {
	return &DeleteChildHandler{uow: uow, log: orNop(log).With(logger.Component("delete_child"))}
}

// Handle executes the command.
func (h *DeleteChildHandler) Handle(ctx context.Context, cmd DeleteChildCommand) error {
	if err := required("child", "Delete", "childId", cmd.ChildID); err != nil {
		return err
	}
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}
		return uow.Children().Delete(ctx, c.ID)
	})
	if err != nil {
		return err
	}
	h.log.Info("child deleted", logger.ChildID(cmd.ChildID), logger.String("actor", cmd.Actor.UserID))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// START MISSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// StartMissionCommand opens progress tracking for a mission.
type StartMissionCommand struct {
	Actor     access.Actor
	ChildID   string
	MissionID string
}

// StartMissionHandler handles StartMissionCommand.
type StartMissionHandler struct {
	uow     store.UnitOfWorkFactory
	tracker *progression.Tracker
	log     *logger.Logger
}

// NewStartMissionHandler creates a new StartMissionHandler.
func NewStartMissionHandler(uow store.UnitOfWorkFactory, tracker *progression.Tracker, log *logger.Logger) *StartMissionHandler {
	return &StartMissionHandler{
		uow:     uow,
		tracker: tracker,
		log:     orNop(log).With(logger.Component("start_mission")),
	}
}

// Handle executes the command. Starting an already started mission returns
// the existing progress unchanged.
func (h *StartMissionHandler) Handle(ctx context.Context, cmd StartMissionCommand) (*mission.Progress, error) {
	if err := required("mission", "Start", "childId", cmd.ChildID); err != nil {
		return nil, err
	}
	if err := required("mission", "Start", "missionId", cmd.MissionID); err != nil {
		return nil, err
	}

	var rec progression.Recomputed
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByID(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}
		rec, err = h.tracker.Recompute(ctx, uow, c.ID, cmd.MissionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.log.Debug("mission started",
		logger.ChildID(cmd.ChildID),
		logger.MissionID(cmd.MissionID),
		logger.Int("completion", rec.Progress.CompletionPercentage),
	)
	return rec.Progress, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH MISSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// PublishMissionCommand stores a curated mission with its challenges.
// Challenges without an explicit reward inherit PointsPerChallenge.
type PublishMissionCommand struct {
	Actor      access.Actor
	Mission    mission.Mission
	Challenges []mission.Challenge
}

// PublishMissionHandler handles PublishMissionCommand.
type PublishMissionHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewPublishMissionHandler creates a new PublishMissionHandler.
func NewPublishMissionHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *PublishMissionHandler {
	return &PublishMissionHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("publish_mission")),
	}
}

// Handle executes the command.
func (h *PublishMissionHandler) Handle(ctx context.Context, cmd PublishMissionCommand) (*mission.Mission, error) {
	if err := access.RequireAdmin(cmd.Actor, "PublishMission"); err != nil {
		return nil, err
	}
	m := cmd.Mission
	if err := m.Period.Validate(); err != nil {
		return nil, err
	}
	if err := required("mission", "Publish", "title", m.Title); err != nil {
		return nil, err
	}
	if len(cmd.Challenges) == 0 {
		return nil, shared.ErrMissionHasNoChallenges
	}
	if m.ID == "" {
		m.ID = shared.NewID()
	}
	m.PublishedAt = h.clock.Now()

	challenges := make([]*mission.Challenge, 0, len(cmd.Challenges))
	for i := range cmd.Challenges {
		ch := cmd.Challenges[i]
		if ch.ID == "" {
			ch.ID = shared.NewID()
		}
		ch.MissionID = m.ID
		ch.Order = i + 1
		if ch.PointReward == 0 {
			ch.PointReward = m.PointsPerChallenge
		}
		if err := ch.Validate(); err != nil {
			return nil, err
		}
		challenges = append(challenges, &ch)
	}

	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		return uow.Missions().Publish(ctx, &m, challenges)
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("mission published",
		logger.MissionID(m.ID),
		logger.String("period", m.Period.String()),
		logger.Int("challenges", len(challenges)),
	)
	return &m, nil
}
