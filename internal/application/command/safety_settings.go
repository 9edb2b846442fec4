package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/safety"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE SAFETY SETTINGS COMMAND
// A guardian may tighten the age defaults but never relax them.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateSafetySettingsCommand contains a partial update.
type UpdateSafetySettingsCommand struct {
	Actor   access.Actor
	ChildID string
	Update  safety.Update
}

// Validate validates the command.
func (c UpdateSafetySettingsCommand) Validate() error {
	if err := required("safety", "Update", "childId", c.ChildID); err != nil {
		return err
	}
	if c.Update.IsEmpty() {
		return shared.NewDomainError("safety", "Update", shared.ErrValidation, "no settings to update")
	}
	return nil
}

// SafetySettingsResult contains the settings after the change.
type SafetySettingsResult struct {
	Child         *child.Child
	Settings      safety.Settings
	ChangedFields []string
}

// UpdateSafetySettingsHandler handles UpdateSafetySettingsCommand.
type UpdateSafetySettingsHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewUpdateSafetySettingsHandler creates a new UpdateSafetySettingsHandler.
func NewUpdateSafetySettingsHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *UpdateSafetySettingsHandler {
	return &UpdateSafetySettingsHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("update_safety_settings")),
	}
}

// Handle executes the command. Every rejected field is reported at once.
func (h *UpdateSafetySettingsHandler) Handle(ctx context.Context, cmd UpdateSafetySettingsCommand) (*SafetySettingsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result SafetySettingsResult
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}

		changed, err := c.UpdateSafety(cmd.Update, h.clock.Now())
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			if err := uow.Children().UpdateProfile(ctx, c); err != nil {
				return err
			}
		}
		result = SafetySettingsResult{Child: c, Settings: c.Safety, ChangedFields: changed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("safety settings updated",
		logger.ChildID(cmd.ChildID),
		logger.Any("changed", result.ChangedFields),
	)
	return &result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET SAFETY SETTINGS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ResetSafetySettingsCommand restores the age defaults.
type ResetSafetySettingsCommand struct {
	Actor   access.Actor
	ChildID string
}

// ResetSafetySettingsHandler handles ResetSafetySettingsCommand.
type ResetSafetySettingsHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewResetSafetySettingsHandler creates a new ResetSafetySettingsHandler.
func NewResetSafetySettingsHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *ResetSafetySettingsHandler {
	return &ResetSafetySettingsHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("reset_safety_settings")),
	}
}

// Handle executes the command.
func (h *ResetSafetySettingsHandler) Handle(ctx context.Context, cmd ResetSafetySettingsCommand) (*SafetySettingsResult, error) {
	if err := required("safety", "Reset", "childId", cmd.ChildID); err != nil {
		return nil, err
	}

	var result SafetySettingsResult
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}
		before := c.Safety
		c.ResetSafety(h.clock.Now())
		if err := uow.Children().UpdateProfile(ctx, c); err != nil {
			return err
		}
		result = SafetySettingsResult{Child: c, Settings: c.Safety, ChangedFields: diffSettings(before, c.Safety)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("safety settings reset", logger.ChildID(cmd.ChildID))
	return &result, nil
}

func diffSettings(a, b safety.Settings) []string {
	changed := make([]string, 0, 4)
	if a.RequiresParentAssistance != b.RequiresParentAssistance {
		changed = append(changed, safety.FieldRequiresParentAssistance)
	}
	if a.CanBrowseCommunity != b.CanBrowseCommunity {
		changed = append(changed, safety.FieldCanBrowseCommunity)
	}
	if a.CanPostToCommunity != b.CanPostToCommunity {
		changed = append(changed, safety.FieldCanPostToCommunity)
	}
	if a.CanViewGlobalMap != b.CanViewGlobalMap {
		changed = append(changed, safety.FieldCanViewGlobalMap)
	}
	return changed
}
