package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

func TestSubmitChallenge_CreatesPending(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)

	res, err := f.submitHandler().Handle(f.ctx, SubmitChallengeCommand{
		Actor:       parent,
		ChildID:     c.ID,
		ChallengeID: chs[0].ID,
		ProofKind:   "PHOTO",
		ProofRefs:   []string{"s3://proofs/a.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, challenge.StatusPending, res.Submission.Status)
	assert.Equal(t, 0, res.Submission.PointsAwarded)
	assert.Equal(t, 0, f.child(c.ID).PointsBalance)
	assert.Equal(t, []shared.EventType{shared.EventSubmissionCreated}, f.pub.types())
}

func TestSubmitChallenge_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)

	tests := []struct {
		name string
		cmd  SubmitChallengeCommand
		kind error
	}{
		{"unsupported proof kind", SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "text", ProofRefs: []string{"x"}}, shared.ErrValidation},
		{"kind not allowed by challenge", SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "audio", ProofRefs: []string{"x"}}, shared.ErrValidation},
		{"empty proof refs", SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo"}, shared.ErrValidation},
		{"blank proof refs", SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo", ProofRefs: []string{"  "}}, shared.ErrValidation},
		{"unknown challenge", SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: "nope", ProofKind: "photo", ProofRefs: []string{"x"}}, shared.ErrNotFound},
		{"foreign child", SubmitChallengeCommand{Actor: other, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo", ProofRefs: []string{"x"}}, shared.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.submitHandler().Handle(f.ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestSubmitChallenge_DuplicateActiveIsConflict(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)
	cmd := SubmitChallengeCommand{Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo", ProofRefs: []string{"x"}}

	first, err := f.submitHandler().Handle(f.ctx, cmd)
	require.NoError(t, err)

	_, err = f.submitHandler().Handle(f.ctx, cmd)
	assert.True(t, shared.IsConflict(err))

	// After a rejection the child may try again.
	_, err = f.reviewHandler(false).Handle(f.ctx, ReviewSubmissionCommand{Actor: admin, SubmissionID: first.Submission.ID, Decision: "REJECTED"})
	require.NoError(t, err)
	_, err = f.submitHandler().Handle(f.ctx, cmd)
	assert.NoError(t, err)
}

func TestReviewSubmission_ApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)

	sub, err := f.submitHandler().Handle(f.ctx, SubmitChallengeCommand{
		Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "video", ProofRefs: []string{"s3://v.mp4"},
	})
	require.NoError(t, err)

	review := ReviewSubmissionCommand{Actor: admin, SubmissionID: sub.Submission.ID, Decision: "APPROVED", Notes: "¡Bien hecho!"}
	res, err := f.reviewHandler(false).Handle(f.ctx, review)
	require.NoError(t, err)
	assert.Equal(t, 25, res.PointsAwarded)
	assert.Equal(t, 25, res.NewBalance)
	assert.Equal(t, challenge.StatusApproved, res.Submission.Status)
	require.NotNil(t, res.Progress)
	assert.Equal(t, 25, res.Progress.CompletionPercentage)

	_, err = f.reviewHandler(false).Handle(f.ctx, review)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyReviewed))
	assert.True(t, shared.IsConflict(err))

	assert.Equal(t, 25, f.child(c.ID).PointsBalance)
	entries := f.ledgerEntries(c.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.ReasonChallengeApproved, entries[0].Reason)
	assert.Equal(t, sub.Submission.ID, entries[0].ReferenceID)
}

func TestReviewSubmission_RejectGrantsNothing(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)

	sub, err := f.submitHandler().Handle(f.ctx, SubmitChallengeCommand{
		Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo", ProofRefs: []string{"x"},
	})
	require.NoError(t, err)
	f.pub.reset()

	res, err := f.reviewHandler(false).Handle(f.ctx, ReviewSubmissionCommand{Actor: admin, SubmissionID: sub.Submission.ID, Decision: "rejected"})
	require.NoError(t, err)

	assert.Equal(t, challenge.StatusRejected, res.Submission.Status)
	assert.Equal(t, 0, res.PointsAwarded)
	assert.Equal(t, 0, f.child(c.ID).PointsBalance)
	assert.Empty(t, f.ledgerEntries(c.ID))
	assert.Equal(t, []shared.EventType{shared.EventSubmissionRejected}, f.pub.types())
}

func TestReviewSubmission_Authorization(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	_, chs := f.addMission(4, 25)
	sub, err := f.submitHandler().Handle(f.ctx, SubmitChallengeCommand{
		Actor: parent, ChildID: c.ID, ChallengeID: chs[0].ID, ProofKind: "photo", ProofRefs: []string{"x"},
	})
	require.NoError(t, err)
	cmd := ReviewSubmissionCommand{Actor: parent, SubmissionID: sub.Submission.ID, Decision: "APPROVED"}

	_, err = f.reviewHandler(false).Handle(f.ctx, cmd)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	cmd.Actor = other
	_, err = f.reviewHandler(true).Handle(f.ctx, cmd)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	cmd.Actor = parent
	res, err := f.reviewHandler(true).Handle(f.ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 25, res.NewBalance)
}

func TestReviewSubmission_InvalidDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.reviewHandler(false).Handle(f.ctx, ReviewSubmissionCommand{Actor: admin, SubmissionID: "s", Decision: "MAYBE"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.reviewHandler(false).Handle(f.ctx, ReviewSubmissionCommand{Actor: admin, SubmissionID: "missing", Decision: "APPROVED"})
	assert.True(t, shared.IsNotFound(err))
}

func TestMissionProgress_FourChallengesOfTwentyFive(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(8, 0)
	m, chs := f.addMission(4, 25)

	f.submitAndApprove(c.ID, chs[0].ID)
	res := f.submitAndApprove(c.ID, chs[1].ID)
	assert.Equal(t, 50, res.Progress.CompletionPercentage)
	assert.Nil(t, res.Progress.CompletedAt)

	f.submitAndApprove(c.ID, chs[2].ID)
	f.pub.reset()
	res = f.submitAndApprove(c.ID, chs[3].ID)
	assert.Equal(t, 100, res.Progress.CompletionPercentage)
	require.NotNil(t, res.Progress.CompletedAt)
	completedAt := *res.Progress.CompletedAt
	assert.Contains(t, f.pub.types(), shared.EventMissionCompleted)
	assert.Equal(t, 100, f.child(c.ID).PointsBalance)

	// Recomputing again never clears completion.
	var again bool
	f.run(func(uow store.UnitOfWork) error {
		rec, err := f.tracker.Recompute(f.ctx, uow, c.ID, m.ID)
		again = rec.Completed
		assert.Equal(t, completedAt, *rec.Progress.CompletedAt)
		assert.False(t, rec.Changed)
		return err
	})
	assert.False(t, again)
}

func TestReviewSubmission_RankUpAtTenApprovals(t *testing.T) {
	f := newFixture(t)
	c := f.addChild(10, 0)
	_, chs := f.addMission(10, 10)

	var last *ReviewSubmissionResult
	for i, ch := range chs {
		f.pub.reset()
		last = f.submitAndApprove(c.ID, ch.ID)
		if i < 9 {
			assert.False(t, last.RankChanged)
			assert.Equal(t, rank.Iniciado, last.Rank)
		}
	}

	assert.True(t, last.RankChanged)
	assert.Equal(t, rank.Iniciado, last.PreviousRank)
	assert.Equal(t, rank.Valiente, last.Rank)
	assert.Equal(t, rank.Valiente, f.child(c.ID).Rank)
	assert.Contains(t, f.pub.types(), shared.EventRankChanged)
}
