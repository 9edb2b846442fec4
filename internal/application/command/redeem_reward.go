package command

import (
	"context"
	"time"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD COMMAND
// Exchanges points for a catalog reward. Child and reward rows are locked
// for the whole unit of work, so the checks and the mutations see one state.
// ══════════════════════════════════════════════════════════════════════════════

// IdempotencyGuard deduplicates client retries of the same request.
// Acquire returns false when the key was already used.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedeemRewardCommand contains a redemption request.
type RedeemRewardCommand struct {
	Actor    access.Actor
	ChildID  string
	RewardID string
	Shipping *reward.ShippingInfo

	// IdempotencyKey is optional. Ignored when no guard is configured.
	IdempotencyKey string
}

// Validate validates the command.
func (c RedeemRewardCommand) Validate() error {
	if err := required("reward", "Redeem", "childId", c.ChildID); err != nil {
		return err
	}
	return required("reward", "Redeem", "rewardId", c.RewardID)
}

// RedeemRewardResult contains the created redemption.
type RedeemRewardResult struct {
	Redemption      *reward.Redemption
	Reward          *reward.Reward
	PointsSpent     int
	PointsRemaining int
}

// RedeemRewardHandler handles RedeemRewardCommand.
type RedeemRewardHandler struct {
	uow            store.UnitOfWorkFactory
	ledger         *progression.AccountLedger
	idempotency    IdempotencyGuard
	idempotencyTTL time.Duration
	publisher      shared.EventPublisher
	clock          shared.Clock
	log            *logger.Logger
}

// NewRedeemRewardHandler creates a new RedeemRewardHandler.
func NewRedeemRewardHandler(
	uow store.UnitOfWorkFactory,
	accountLedger *progression.AccountLedger,
	publisher shared.EventPublisher,
	clock shared.Clock,
	log *logger.Logger,
) *RedeemRewardHandler {
	return &RedeemRewardHandler{
		uow:            uow,
		ledger:         accountLedger,
		idempotencyTTL: 24 * time.Hour,
		publisher:      publisher,
		clock:          orSystemClock(clock),
		log:            orNop(log).With(logger.Component("redeem_reward")),
	}
}

// WithIdempotency enables request deduplication by key.
func (h *RedeemRewardHandler) WithIdempotency(g IdempotencyGuard, ttl time.Duration) *RedeemRewardHandler {
	h.idempotency = g
	if ttl > 0 {
		h.idempotencyTTL = ttl
	}
	return h
}

// Handle executes the command. Checks run in a fixed order:
// not found, not redeemable, out of stock, insufficient funds.
func (h *RedeemRewardHandler) Handle(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if h.idempotency != nil && cmd.IdempotencyKey != "" {
		key := "redeem:" + cmd.Actor.UserID + ":" + cmd.IdempotencyKey
		ok, err := h.idempotency.Acquire(ctx, key, h.idempotencyTTL)
		if err != nil {
			// Deduplication is best-effort; the unit of work still guards state.
			h.log.Warn("idempotency guard unavailable", logger.Err(err))
		} else if !ok {
			return nil, shared.ErrDuplicateRequest.WithDetail("idempotencyKey", cmd.IdempotencyKey)
		} else {
			result, err := h.redeem(ctx, cmd)
			if err != nil {
				if relErr := h.idempotency.Release(ctx, key); relErr != nil {
					h.log.Warn("failed to release idempotency key", logger.Err(relErr))
				}
				return nil, err
			}
			return result, nil
		}
	}

	return h.redeem(ctx, cmd)
}

func (h *RedeemRewardHandler) redeem(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	var (
		result     RedeemRewardResult
		guardianID string
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByIDForUpdate(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}
		guardianID = c.GuardianID

		r, err := uow.Rewards().GetByIDForUpdate(ctx, cmd.RewardID)
		if err != nil {
			return err
		}
		if err := r.EvaluateRedemption(c.PointsBalance); err != nil {
			return err
		}

		red, err := reward.NewRedemption(c.ID, r, cmd.Shipping, h.clock.Now())
		if err != nil {
			return err
		}

		balance := c.PointsBalance
		if r.Cost > 0 {
			balance, err = h.ledger.Debit(ctx, uow, c.ID, r.Cost, ledger.ReasonRedemption, red.ID)
			if err != nil {
				return err
			}
		}
		if err := uow.Rewards().DecrementStock(ctx, r.ID); err != nil {
			return err
		}
		if err := r.TakeOne(); err != nil {
			return err
		}
		if err := uow.Redemptions().Create(ctx, red); err != nil {
			return err
		}

		result = RedeemRewardResult{
			Redemption:      red,
			Reward:          r,
			PointsSpent:     r.Cost,
			PointsRemaining: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("reward redeemed",
		logger.ChildID(cmd.ChildID),
		logger.RewardID(result.Reward.ID),
		logger.Points(result.PointsSpent),
		logger.Balance(result.PointsRemaining),
	)

	publishEvents(h.log, h.publisher, rewardGranted(shared.EventRewardRedeemed, result.Redemption, result.Reward, guardianID))
	return &result, nil
}

func rewardGranted(t shared.EventType, red *reward.Redemption, r *reward.Reward, guardianID string) shared.Event {
	return shared.NewRewardGrantedEvent(t,
		red.ID, red.ChildID, guardianID,
		r.ID, r.Code, r.NameES, string(r.Kind), red.CostPaid,
	)
}
