package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type submissionRepo struct {
	tx pgx.Tx
}

const submissionColumns = `
	id, child_id, challenge_id, mission_id, proof_kind, proof_refs, status,
	submitted_at, reviewed_at, reviewer_id, notes, points_awarded`

// Create relies on ux_submissions_active to reject a second active
// submission for the same child and challenge.
func (r submissionRepo) Create(ctx context.Context, s *challenge.Submission) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.ChildID, s.ChallengeID, s.MissionID, string(s.ProofKind), s.ProofRefs, string(s.Status),
		s.SubmittedAt, s.ReviewedAt, s.ReviewerID, s.Notes, s.PointsAwarded,
	)
	if err == nil {
		return nil
	}
	switch {
	case IsUniqueViolation(err):
		return shared.ErrDuplicateSubmission
	case IsForeignKeyViolation(err):
		switch pgConstraint(err) {
		case "submissions_challenge_id_fkey":
			return shared.ErrChallengeNotFound
		case "submissions_mission_id_fkey":
			return shared.ErrMissionNotFound
		default:
			return shared.ErrChildNotFound
		}
	}
	return fmt.Errorf("insert submission: %w", err)
}

func (r submissionRepo) GetByID(ctx context.Context, id string) (*challenge.Submission, error) {
	return r.getOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
}

func (r submissionRepo) GetByIDForUpdate(ctx context.Context, id string) (*challenge.Submission, error) {
	return r.getOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
}

func (r submissionRepo) getOne(ctx context.Context, query, id string) (*challenge.Submission, error) {
	s, err := scanSubmission(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return s, nil
}

// SaveReview applies the review only while the row is still PENDING, so two
// concurrent reviewers cannot both succeed.
func (r submissionRepo) SaveReview(ctx context.Context, s *challenge.Submission) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE submissions SET
			status = $2,
			reviewed_at = $3,
			reviewer_id = $4,
			notes = $5,
			points_awarded = $6
		WHERE id = $1 AND status = 'PENDING'`,
		s.ID, string(s.Status), s.ReviewedAt, s.ReviewerID, s.Notes, s.PointsAwarded,
	)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM submissions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	if !exists {
		return shared.ErrSubmissionNotFound
	}
	return shared.ErrAlreadyReviewed
}

func (r submissionRepo) ListByChild(ctx context.Context, childID string, f challenge.StatusFilter) ([]*challenge.Submission, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	rows, err := r.tx.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE child_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY submitted_at DESC, id DESC`, childID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]*challenge.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r submissionRepo) ApprovedHistory(ctx context.Context, childID string) (rank.History, error) {
	var h rank.History
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(points_awarded), 0)
		FROM submissions
		WHERE child_id = $1 AND status = 'APPROVED'`, childID,
	).Scan(&h.ApprovedChallenges, &h.CumulativePoints)
	if err != nil {
		return rank.History{}, fmt.Errorf("approved history: %w", err)
	}
	return h, nil
}

func (r submissionRepo) CountApprovedInMission(ctx context.Context, childID, missionID string) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(DISTINCT challenge_id)
		FROM submissions
		WHERE child_id = $1 AND mission_id = $2 AND status = 'APPROVED'`, childID, missionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count approved: %w", err)
	}
	return n, nil
}

func scanSubmission(row pgx.Row) (*challenge.Submission, error) {
	var (
		s      challenge.Submission
		kind   string
		status string
	)
	err := row.Scan(
		&s.ID, &s.ChildID, &s.ChallengeID, &s.MissionID, &kind, &s.ProofRefs, &status,
		&s.SubmittedAt, &s.ReviewedAt, &s.ReviewerID, &s.Notes, &s.PointsAwarded,
	)
	if err != nil {
		return nil, err
	}
	s.ProofKind = mission.ProofKind(kind)
	s.Status = challenge.Status(status)
	return &s, nil
}
