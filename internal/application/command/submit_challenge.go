package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT CHALLENGE COMMAND
// Creates a PENDING submission. No points are granted here.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitChallengeCommand contains the proof of a completed challenge.
type SubmitChallengeCommand struct {
	Actor       access.Actor
	ChildID     string
	ChallengeID string
	ProofKind   string
	ProofRefs   []string
}

// Validate validates the command.
func (c SubmitChallengeCommand) Validate() error {
	if err := required("challenge", "Submit", "childId", c.ChildID); err != nil {
		return err
	}
	if err := required("challenge", "Submit", "challengeId", c.ChallengeID); err != nil {
		return err
	}
	if _, err := mission.ParseProofKind(c.ProofKind); err != nil {
		return err
	}
	if len(c.ProofRefs) == 0 {
		return shared.ErrProofRequired
	}
	return nil
}

// SubmitChallengeResult contains the created submission.
type SubmitChallengeResult struct {
	Submission *challenge.Submission
	Challenge  *mission.Challenge
}

// SubmitChallengeHandler handles SubmitChallengeCommand.
type SubmitChallengeHandler struct {
	uow       store.UnitOfWorkFactory
	publisher shared.EventPublisher
	clock     shared.Clock
	log       *logger.Logger
}

// NewSubmitChallengeHandler creates a new SubmitChallengeHandler.
func NewSubmitChallengeHandler(uow store.UnitOfWorkFactory, publisher shared.EventPublisher, clock shared.Clock, log *logger.Logger) *SubmitChallengeHandler {
	return &SubmitChallengeHandler{
		uow:       uow,
		publisher: publisher,
		clock:     orSystemClock(clock),
		log:       orNop(log).With(logger.Component("submit_challenge")),
	}
}

// Handle executes the command. A second active submission for the same
// (child, challenge) pair is rejected by the store at insert time.
func (h *SubmitChallengeHandler) Handle(ctx context.Context, cmd SubmitChallengeCommand) (*SubmitChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	kind, _ := mission.ParseProofKind(cmd.ProofKind)

	var (
		result     SubmitChallengeResult
		guardianID string
	)
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := uow.Children().GetByID(ctx, cmd.ChildID)
		if err != nil {
			return err
		}
		if err := access.CanAccessChild(cmd.Actor, c); err != nil {
			return err
		}
		guardianID = c.GuardianID

		ch, err := uow.Missions().GetChallenge(ctx, cmd.ChallengeID)
		if err != nil {
			return err
		}

		sub, err := challenge.NewSubmission(c.ID, ch, kind, cmd.ProofRefs, h.clock.Now())
		if err != nil {
			return err
		}
		if err := uow.Submissions().Create(ctx, sub); err != nil {
			return err
		}

		result.Submission = sub
		result.Challenge = ch
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("submission created",
		logger.SubmissionID(result.Submission.ID),
		logger.ChildID(cmd.ChildID),
		logger.String("challenge_id", cmd.ChallengeID),
	)

	publishEvents(h.log, h.publisher, shared.NewSubmissionEvent(
		shared.EventSubmissionCreated,
		result.Submission.ID, cmd.ChildID, guardianID,
		result.Challenge.ID, result.Challenge.Title, 0,
	))

	return &result, nil
}
