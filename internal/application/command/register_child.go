package command

import (
	"context"
	"errors"
	"strings"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// maxSecretCodeAttempts bounds regeneration on secret code collisions.
const maxSecretCodeAttempts = 5

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER CHILD COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterChildCommand contains data for registering a child.
type RegisterChildCommand struct {
	Actor       access.Actor
	DisplayName string
	AgeYears    int

	// Guardian contact, refreshed on every registration.
	GuardianEmail string
	GuardianName  string
	Language      string

	// GuardianID lets an administrator register on behalf of a guardian.
	GuardianID string
}

// Validate validates the command.
func (c RegisterChildCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if err := required("child", "Register", "displayName", c.DisplayName); err != nil {
		return err
	}
	if c.AgeYears < child.MinAge || c.AgeYears > child.MaxAge {
		return shared.ErrInvalidAge
	}
	return nil
}

func (c RegisterChildCommand) guardianID() string {
	if c.Actor.IsAdmin() && c.GuardianID != "" {
		return c.GuardianID
	}
	return c.Actor.UserID
}

// RegisterChildResult contains the registered child.
type RegisterChildResult struct {
	Child *child.Child
}

// RegisterChildHandler handles RegisterChildCommand.
type RegisterChildHandler struct {
	uow        store.UnitOfWorkFactory
	archangels []string
	random     shared.RandomSource
	publisher  shared.EventPublisher
	clock      shared.Clock
	log        *logger.Logger
}

// NewRegisterChildHandler creates a new RegisterChildHandler.
// archangels is the pool a mentor is picked from at random.
func NewRegisterChildHandler(
	uow store.UnitOfWorkFactory,
	archangels []string,
	random shared.RandomSource,
	publisher shared.EventPublisher,
	clock shared.Clock,
	log *logger.Logger,
) *RegisterChildHandler {
	if random == nil {
		random = shared.NewRandom()
	}
	return &RegisterChildHandler{
		uow:        uow,
		archangels: archangels,
		random:     random,
		publisher:  publisher,
		clock:      orSystemClock(clock),
		log:        orNop(log).With(logger.Component("register_child")),
	}
}

// Handle executes the command. A secret code collision regenerates the
// code in a fresh unit of work.
func (h *RegisterChildHandler) Handle(ctx context.Context, cmd RegisterChildCommand) (*RegisterChildResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	guardianID := cmd.guardianID()

	var (
		c   *child.Child
		err error
	)
	for attempt := 1; attempt <= maxSecretCodeAttempts; attempt++ {
		c, err = h.register(ctx, cmd, guardianID)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrSecretCodeAlreadyExists) {
			return nil, err
		}
		h.log.Debug("secret code collision, regenerating", logger.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}

	h.log.Info("child registered",
		logger.ChildID(c.ID),
		logger.GuardianID(guardianID),
		logger.Int("age", c.AgeYears),
		logger.String("archangel_id", c.ArchangelID),
	)

	publishEvents(h.log, h.publisher, shared.NewChildRegisteredEvent(c.ID, guardianID, c.DisplayName, c.AgeYears))
	return &RegisterChildResult{Child: c}, nil
}

func (h *RegisterChildHandler) register(ctx context.Context, cmd RegisterChildCommand, guardianID string) (*child.Child, error) {
	now := h.clock.Now()
	c, err := child.NewChild(child.NewChildParams{
		GuardianID:  guardianID,
		DisplayName: cmd.DisplayName,
		AgeYears:    cmd.AgeYears,
		Archangels:  h.archangels,
		Random:      h.random,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	err = store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		if email := strings.TrimSpace(cmd.GuardianEmail); email != "" {
			g := &child.Guardian{
				ID:          guardianID,
				Email:       email,
				DisplayName: strings.TrimSpace(cmd.GuardianName),
				Language:    shared.ParseLanguage(cmd.Language),
				UpdatedAt:   now,
			}
			if err := uow.Guardians().Upsert(ctx, g); err != nil {
				return err
			}
		}
		return uow.Children().Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
