package challenge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

var now = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func photoChallenge() *mission.Challenge {
	return &mission.Challenge{
		ID:                "ch-1",
		MissionID:         "m-1",
		AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto},
		PointReward:       25,
	}
}

func TestNewSubmission(t *testing.T) {
	s, err := NewSubmission("child-1", photoChallenge(), mission.ProofPhoto, []string{" s3://proofs/a.jpg ", ""}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 0, s.PointsAwarded)
	assert.Equal(t, "m-1", s.MissionID)
	assert.Equal(t, []string{"s3://proofs/a.jpg"}, s.ProofRefs)
	assert.Nil(t, s.ReviewedAt)
}

func TestNewSubmission_Validation(t *testing.T) {
	_, err := NewSubmission("child-1", photoChallenge(), mission.ProofPhoto, nil, now)
	assert.True(t, errors.Is(err, shared.ErrProofRequired))
	assert.True(t, shared.IsValidation(err))

	_, err = NewSubmission("child-1", photoChallenge(), mission.ProofAudio, []string{"ref"}, now)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Contains(t, de.Details, "allowedTypes")
}

func TestReview_ApproveOnce(t *testing.T) {
	s, err := NewSubmission("child-1", photoChallenge(), mission.ProofPhoto, []string{"ref"}, now)
	require.NoError(t, err)

	require.NoError(t, s.Review(DecisionApprove, "admin-1", " great job ", 25, now))
	assert.Equal(t, StatusApproved, s.Status)
	assert.Equal(t, 25, s.PointsAwarded)
	assert.Equal(t, "great job", s.Notes)
	require.NotNil(t, s.ReviewedAt)

	err = s.Review(DecisionReject, "admin-2", "", 25, now)
	assert.True(t, errors.Is(err, shared.ErrAlreadyReviewed))
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, StatusApproved, s.Status)
	assert.Equal(t, 25, s.PointsAwarded)
}

func TestReview_Reject(t *testing.T) {
	s, err := NewSubmission("child-1", photoChallenge(), mission.ProofPhoto, []string{"ref"}, now)
	require.NoError(t, err)

	require.NoError(t, s.Review(DecisionReject, "admin-1", "blurry", 25, now))
	assert.Equal(t, StatusRejected, s.Status)
	assert.Equal(t, 0, s.PointsAwarded)
	assert.False(t, s.Status.IsActive())
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approved")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	_, err = ParseDecision("PENDING")
	assert.True(t, errors.Is(err, shared.ErrInvalidDecision))
}

func TestParseStatusFilter(t *testing.T) {
	f, err := ParseStatusFilter("")
	require.NoError(t, err)
	assert.True(t, f.Matches(StatusRejected))

	f, err = ParseStatusFilter("pending, APPROVED")
	require.NoError(t, err)
	assert.True(t, f.Matches(StatusPending))
	assert.True(t, f.Matches(StatusApproved))
	assert.False(t, f.Matches(StatusRejected))
	assert.Equal(t, []string{"PENDING", "APPROVED"}, f.Strings())

	_, err = ParseStatusFilter("DONE")
	assert.True(t, shared.IsValidation(err))
}
