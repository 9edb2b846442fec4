package command

import (
	"context"
	"time"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD REWARD COMMAND
// Manual grant by an administrator. No points are spent, stock still applies.
// ══════════════════════════════════════════════════════════════════════════════

// AwardRewardCommand contains a manual award.
type AwardRewardCommand struct {
	Actor    access.Actor
	ChildID  string
	RewardID string
	Reason   string
	Metadata map[string]string
}

// Validate validates the command.
func (c AwardRewardCommand) Validate() error {
	if err := required("reward", "Award", "childId", c.ChildID); err != nil {
		return err
	}
	return required("reward", "Award", "rewardId", c.RewardID)
}

// AwardRewardResult contains the created award.
type AwardRewardResult struct {
	Redemption *reward.Redemption
	Reward     *reward.Reward
}

// AwardRewardHandler handles AwardRewardCommand.
type AwardRewardHandler struct {
	uow       store.UnitOfWorkFactory
	publisher shared.EventPublisher
	clock     shared.Clock
	log       *logger.Logger
}

// NewAwardRewardHandler creates a new AwardRewardHandler.
func NewAwardRewardHandler(uow store.UnitOfWorkFactory, publisher shared.EventPublisher, clock shared.Clock, log *logger.Logger) *AwardRewardHandler {
	return &AwardRewardHandler{
		uow:       uow,
		publisher: publisher,
		clock:     orSystemClock(clock),
		log:       orNop(log).With(logger.Component("award_reward")),
	}
}

// Handle executes the command.
func (h *AwardRewardHandler) Handle(ctx context.Context, cmd AwardRewardCommand) (*AwardRewardResult, error) {
	if err := access.RequireAdmin(cmd.Actor, "Award"); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(cmd.Metadata)+2)
	for k, v := range cmd.Metadata {
		meta[k] = v
	}
	if cmd.Reason != "" {
		meta["reason"] = cmd.Reason
	}
	meta["awardedBy"] = cmd.Actor.UserID

	var (
		result     AwardRewardResult
		guardianID string
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		guardianID = c.GuardianID

		r, err := uow.Rewards().GetByIDForUpdate(ctx, cmd.RewardID)
		if err != nil {
			return err
		}
		red, err := grantAward(ctx, uow, c.ID, r, meta, h.clock.Now())
		if err != nil {
			return err
		}
		result = AwardRewardResult{Redemption: red, Reward: r}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("reward awarded",
		logger.ChildID(cmd.ChildID),
		logger.RewardID(cmd.RewardID),
		logger.String("awarded_by", cmd.Actor.UserID),
	)

	publishEvents(h.log, h.publisher, rewardGranted(shared.EventRewardAwarded, result.Redemption, result.Reward, guardianID))
	return &result, nil
}

// grantAward records an AWARDED redemption inside an open unit of work.
// The reward row must already be locked by the caller.
func grantAward(ctx context.Context, uow store.UnitOfWork, childID string, r *reward.Reward, meta map[string]string, now time.Time) (*reward.Redemption, error) {
	if err := r.EvaluateAward(); err != nil {
		return nil, err
	}
	if err := uow.Rewards().DecrementStock(ctx, r.ID); err != nil {
		return nil, err
	}
	if err := r.TakeOne(); err != nil {
		return nil, err
	}
	red := reward.NewAward(childID, r, meta, now)
	if err := uow.Redemptions().Create(ctx, red); err != nil {
		return nil, err
	}
	return red, nil
}
