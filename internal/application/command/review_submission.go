package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW SUBMISSION COMMAND
// PENDING -> APPROVED credits the ledger, recomputes mission progress and
// re-derives rank in the same unit of work as the status change.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewSubmissionCommand contains a reviewer's decision.
type ReviewSubmissionCommand struct {
	Actor        access.Actor
	SubmissionID string
	Decision     string
	Notes        string
}

// Validate validates the command.
func (c ReviewSubmissionCommand) Validate() error {
	if err := required("challenge", "Review", "submissionId", c.SubmissionID); err != nil {
		return err
	}
	_, err := challenge.ParseDecision(c.Decision)
	return err
}

// ReviewSubmissionResult contains the reviewed submission and its effects.
type ReviewSubmissionResult struct {
	Submission    *challenge.Submission
	PointsAwarded int

	// Set only on approval.
	NewBalance   int
	Progress     *mission.Progress
	Rank         rank.Rank
	PreviousRank rank.Rank
	RankChanged  bool
}

// ReviewSubmissionHandler handles ReviewSubmissionCommand.
type ReviewSubmissionHandler struct {
	uow             store.UnitOfWorkFactory
	ledger          *progression.AccountLedger
	tracker         *progression.Tracker
	publisher       shared.EventPublisher
	clock           shared.Clock
	log             *logger.Logger
	guardianAllowed bool
}

// NewReviewSubmissionHandler creates a new ReviewSubmissionHandler.
// guardianAllowed lets the child's own guardian review in addition to admins.
func NewReviewSubmissionHandler(
	uow store.UnitOfWorkFactory,
	accountLedger *progression.AccountLedger,
	tracker *progression.Tracker,
	publisher shared.EventPublisher,
	clock shared.Clock,
	log *logger.Logger,
	guardianAllowed bool,
) *ReviewSubmissionHandler {
	return &ReviewSubmissionHandler{
		uow:             uow,
		ledger:          accountLedger,
		tracker:         tracker,
		publisher:       publisher,
		clock:           orSystemClock(clock),
		log:             orNop(log).With(logger.Component("review_submission")),
		guardianAllowed: guardianAllowed,
	}
}

// Handle executes the command. A submission can be reviewed exactly once:
// the second call fails with ErrAlreadyReviewed and changes nothing.
func (h *ReviewSubmissionHandler) Handle(ctx context.Context, cmd ReviewSubmissionCommand) (*ReviewSubmissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	decision, _ := challenge.ParseDecision(cmd.Decision)

	var (
		result ReviewSubmissionResult
		events []shared.Event
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		events = events[:0]

		sub, err := uow.Submissions().GetByIDForUpdate(ctx, cmd.SubmissionID)
		if err != nil {
			return err
		}
		c, err := uow.Children().GetByIDForUpdate(ctx, sub.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanReview(cmd.Actor, c, h.guardianAllowed); err != nil {
			return err
		}
		ch, err := uow.Missions().GetChallenge(ctx, sub.ChallengeID)
		if err != nil {
			return err
		}

		now := h.clock.Now()
		if err := sub.Review(decision, cmd.Actor.UserID, cmd.Notes, ch.PointReward, now); err != nil {
			return err
		}
		if err := uow.Submissions().SaveReview(ctx, sub); err != nil {
			return err
		}

		result.Submission = sub
		result.PointsAwarded = sub.PointsAwarded
		result.NewBalance = c.PointsBalance
		result.Rank = c.Rank

		if decision == challenge.DecisionReject {
			events = append(events, shared.NewSubmissionEvent(
				shared.EventSubmissionRejected, sub.ID, c.ID, c.GuardianID, ch.ID, ch.Title, 0))
			return nil
		}

		if sub.PointsAwarded > 0 {
			balance, err := h.ledger.Credit(ctx, uow, c.ID, sub.PointsAwarded, ledger.ReasonChallengeApproved, sub.ID)
			if err != nil {
				return err
			}
			c.PointsBalance = balance
			result.NewBalance = balance
		}

		rec, err := h.tracker.Recompute(ctx, uow, c.ID, sub.MissionID)
		if err != nil {
			return err
		}
		result.Progress = rec.Progress

		rc, err := progression.SyncRank(ctx, uow, c)
		if err != nil {
			return err
		}
		result.Rank = rc.Current
		result.PreviousRank = rc.Previous
		result.RankChanged = rc.Changed

		events = append(events, shared.NewSubmissionEvent(
			shared.EventSubmissionApproved, sub.ID, c.ID, c.GuardianID, ch.ID, ch.Title, sub.PointsAwarded))
		if rec.Completed {
			events = append(events, shared.NewMissionCompletedEvent(
				sub.MissionID, c.ID, c.GuardianID, *rec.Progress.CompletedAt))
		}
		if rc.Changed {
			events = append(events, shared.NewRankChangedEvent(
				c.ID, c.GuardianID, rc.Previous.String(), rc.Current.String()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("submission reviewed",
		logger.SubmissionID(cmd.SubmissionID),
		logger.ChildID(result.Submission.ChildID),
		logger.String("decision", string(decision)),
		logger.Points(result.PointsAwarded),
		logger.Balance(result.NewBalance),
	)

	publishEvents(h.log, h.publisher, events...)
	return &result, nil
}
