package command

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// DefaultWelcomeBonus is credited when initiation completes.
const DefaultWelcomeBonus = 100

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE INITIATION COMMAND
// The child enters the secret code, picks an alter ego name and receives the
// welcome bonus plus the first rank badge. Rank itself stays derived.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteInitiationCommand contains the onboarding answers.
type CompleteInitiationCommand struct {
	SecretCode   string
	AlterEgoName string

	// ArchangelID optionally overrides the mentor picked at registration.
	ArchangelID string
}

// Validate validates the command.
func (c CompleteInitiationCommand) Validate() error {
	if err := required("child", "CompleteInitiation", "secretCode", c.SecretCode); err != nil {
		return err
	}
	return required("child", "CompleteInitiation", "alterEgoName", c.AlterEgoName)
}

// CompleteInitiationResult contains the initiated child.
type CompleteInitiationResult struct {
	Child        *child.Child
	BonusPoints  int
	BadgeAwarded *reward.Redemption
}

// CompleteInitiationHandler handles CompleteInitiationCommand.
type CompleteInitiationHandler struct {
	uow          store.UnitOfWorkFactory
	ledger       *progression.AccountLedger
	archangels   []string
	welcomeBonus int
	publisher    shared.EventPublisher
	clock        shared.Clock
	log          *logger.Logger
}

// NewCompleteInitiationHandler creates a new CompleteInitiationHandler.
// A welcomeBonus of 0 disables the bonus.
func NewCompleteInitiationHandler(
	uow store.UnitOfWorkFactory,
	accountLedger *progression.AccountLedger,
	archangels []string,
	welcomeBonus int,
	publisher shared.EventPublisher,
	clock shared.Clock,
	log *logger.Logger,
) *CompleteInitiationHandler {
	return &CompleteInitiationHandler{
		uow:          uow,
		ledger:       accountLedger,
		archangels:   archangels,
		welcomeBonus: welcomeBonus,
		publisher:    publisher,
		clock:        orSystemClock(clock),
		log:          orNop(log).With(logger.Component("complete_initiation")),
	}
}

// Handle executes the command. Completing twice is a conflict.
func (h *CompleteInitiationHandler) Handle(ctx context.Context, cmd CompleteInitiationCommand) (*CompleteInitiationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	archangelID := strings.TrimSpace(cmd.ArchangelID)
	if archangelID != "" && !slices.Contains(h.archangels, archangelID) {
		return nil, shared.NewDomainError("child", "CompleteInitiation", shared.ErrValidation,
			"unknown archangel").WithDetail("archangelId", archangelID)
	}

	var (
		result CompleteInitiationResult
		events []shared.Event
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		events = events[:0]

		found, err := uow.Children().GetBySecretCode(ctx, child.NormalizeSecretCode(cmd.SecretCode))
		if err != nil {
			return err
		}
		c, err := uow.Children().GetByIDForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}

		now := h.clock.Now()
		if err := c.CompleteInitiation(cmd.AlterEgoName, now); err != nil {
			return err
		}
		if archangelID != "" {
			c.ArchangelID = archangelID
		}
		if err := uow.Children().UpdateProfile(ctx, c); err != nil {
			return err
		}

		if h.welcomeBonus > 0 {
			balance, err := h.ledger.Credit(ctx, uow, c.ID, h.welcomeBonus, ledger.ReasonWelcomeBonus, c.ID)
			if err != nil {
				return err
			}
			c.PointsBalance = balance
			result.BonusPoints = h.welcomeBonus
		}

		badge, err := h.awardRankBadge(ctx, uow, c, now)
		if err != nil {
			return err
		}
		if badge != nil {
			result.BadgeAwarded = badge.red
			events = append(events, rewardGranted(shared.EventRewardAwarded, badge.red, badge.reward, c.GuardianID))
		}

		result.Child = c
		events = append([]shared.Event{
			shared.NewInitiationCompletedEvent(c.ID, c.GuardianID, c.AlterEgoName, result.BonusPoints),
		}, events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("initiation completed",
		logger.ChildID(result.Child.ID),
		logger.Points(result.BonusPoints),
		logger.Bool("badge_awarded", result.BadgeAwarded != nil),
	)

	publishEvents(h.log, h.publisher, events...)
	return &result, nil
}

type grantedBadge struct {
	red    *reward.Redemption
	reward *reward.Reward
}

// awardRankBadge grants the badge whose code matches the child's current
// rank. A missing, sold out or already held badge is not an error.
func (h *CompleteInitiationHandler) awardRankBadge(ctx context.Context, uow store.UnitOfWork, c *child.Child, now time.Time) (*grantedBadge, error) {
	code := string(rank.Iniciado)
	if c.Rank.IsValid() {
		code = c.Rank.String()
	}

	found, err := uow.Rewards().GetByCode(ctx, code)
	if err != nil {
		if shared.IsNotFound(err) {
			h.log.Warn("rank badge missing from catalog", logger.String("code", code))
			return nil, nil
		}
		return nil, err
	}
	held, err := uow.Redemptions().HasReward(ctx, c.ID, code)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, nil
	}

	r, err := uow.Rewards().GetByIDForUpdate(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	red, err := grantAward(ctx, uow, c.ID, r, map[string]string{"reason": "initiation"}, now)
	if errors.Is(err, shared.ErrOutOfStock) {
		h.log.Warn("rank badge out of stock", logger.String("code", code), logger.ChildID(c.ID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grantedBadge{red: red, reward: r}, nil
}
