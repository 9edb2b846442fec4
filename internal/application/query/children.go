package query

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/safety"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILDREN QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ChildDTO is the public view of a child.
type ChildDTO struct {
	*child.Child

	// NextRank is the next threshold, nil at MAESTRO.
	NextRank *rank.Threshold `json:"nextRank,omitempty"`
}

func toChildDTO(c *child.Child) ChildDTO {
	dto := ChildDTO{Child: c}
	if next, ok := rank.Next(c.Rank); ok {
		dto.NextRank = &next
	}
	return dto
}

// ChildrenHandler answers child lookups.
type ChildrenHandler struct {
	uow store.UnitOfWorkFactory
}

// NewChildrenHandler creates a new ChildrenHandler.
func NewChildrenHandler(uow store.UnitOfWorkFactory) *ChildrenHandler {
	return &ChildrenHandler{uow: uow}
}

// List returns the children of the calling guardian.
func (h *ChildrenHandler) List(ctx context.Context, actor access.Actor) ([]ChildDTO, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var out []ChildDTO
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		children, err := uow.Children().ListByGuardian(ctx, actor.UserID)
		if err != nil {
			return err
		}
		out = make([]ChildDTO, 0, len(children))
		for _, c := range children {
			out = append(out, toChildDTO(c))
		}
		return nil
	})
	return out, err
}

// Get returns one child the actor may access.
func (h *ChildrenHandler) Get(ctx context.Context, actor access.Actor, childID string) (*ChildDTO, error) {
	var out ChildDTO
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, actor, childID)
		if err != nil {
			return err
		}
		out = toChildDTO(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func loadChild(ctx context.Context, uow store.UnitOfWork, actor access.Actor, childID string) (*child.Child, error) {
	if childID == "" {
		return nil, shared.ErrChildNotFound
	}
	c, err := uow.Children().GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if err := access.CanAccessChild(actor, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAFETY SETTINGS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// SafetySettingsDTO describes current settings against the age defaults.
type SafetySettingsDTO struct {
	ChildID         string          `json:"childId"`
	ChildAge        int             `json:"childAge"`
	Current         safety.Settings `json:"current"`
	AgeDefaults     safety.Settings `json:"ageDefaults"`
	ModeDescription string          `json:"modeDescription"`
}

// SafetySettingsHandler answers safety lookups.
type SafetySettingsHandler struct {
	uow store.UnitOfWorkFactory
}

// NewSafetySettingsHandler creates a new SafetySettingsHandler.
func NewSafetySettingsHandler(uow store.UnitOfWorkFactory) *SafetySettingsHandler {
	return &SafetySettingsHandler{uow: uow}
}

// Handle returns the settings of a child. lang selects the mode description.
func (h *SafetySettingsHandler) Handle(ctx context.Context, actor access.Actor, childID string, lang shared.Language) (*SafetySettingsDTO, error) {
	var out SafetySettingsDTO
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, actor, childID)
		if err != nil {
			return err
		}
		out = DescribeSafety(c, lang)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DescribeSafety builds the settings view of a child.
func DescribeSafety(c *child.Child, lang shared.Language) SafetySettingsDTO {
	return SafetySettingsDTO{
		ChildID:         c.ID,
		ChildAge:        c.AgeYears,
		Current:         c.Safety,
		AgeDefaults:     safety.DefaultsFor(c.AgeYears),
		ModeDescription: safety.ModeDescription(c.AgeYears, lang),
	}
}
