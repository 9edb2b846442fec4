package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type missionRepo struct {
	tx pgx.Tx
}

const missionSelect = `
	SELECT m.id, m.year, m.month, m.title, m.description, m.archangel_id,
	       m.points_per_challenge, m.published_at,
	       COALESCE(ARRAY(SELECT c.id FROM challenges c WHERE c.mission_id = m.id ORDER BY c.sort_order), '{}')
	FROM missions m`

func (r missionRepo) GetByID(ctx context.Context, id string) (*mission.Mission, error) {
	return r.getOne(ctx, missionSelect+` WHERE m.id = $1`, id)
}

func (r missionRepo) GetByPeriod(ctx context.Context, p mission.Period) (*mission.Mission, error) {
	return r.getOne(ctx, missionSelect+` WHERE m.year = $1 AND m.month = $2`, p.Year, p.Month)
}

func (r missionRepo) getOne(ctx context.Context, query string, args ...any) (*mission.Mission, error) {
	var m mission.Mission
	err := r.tx.QueryRow(ctx, query, args...).Scan(
		&m.ID, &m.Period.Year, &m.Period.Month, &m.Title, &m.Description, &m.ArchangelID,
		&m.PointsPerChallenge, &m.PublishedAt, &m.ChallengeIDs,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrMissionNotFound
		}
		return nil, fmt.Errorf("select mission: %w", err)
	}
	return &m, nil
}

const challengeColumns = `id, mission_id, sort_order, title, description, allowed_proof_kinds, point_reward`

func (r missionRepo) GetChallenge(ctx context.Context, id string) (*mission.Challenge, error) {
	c, err := scanChallenge(r.tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("select challenge: %w", err)
	}
	return c, nil
}

func (r missionRepo) ListChallenges(ctx context.Context, missionID string) ([]*mission.Challenge, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+challengeColumns+` FROM challenges
		WHERE mission_id = $1
		ORDER BY sort_order`, missionID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	out := make([]*mission.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Publish inserts the mission and its challenges in one batch.
func (r missionRepo) Publish(ctx context.Context, m *mission.Mission, challenges []*mission.Challenge) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO missions (id, year, month, title, description, archangel_id, points_per_challenge, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Period.Year, m.Period.Month, m.Title, m.Description, m.ArchangelID,
		m.PointsPerChallenge, m.PublishedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("mission", "Publish", shared.ErrAlreadyExists,
				"mission already published for "+m.Period.String())
		}
		return fmt.Errorf("insert mission: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range challenges {
		c.MissionID = m.ID
		kinds := make([]string, len(c.AllowedProofKinds))
		for i, k := range c.AllowedProofKinds {
			kinds[i] = string(k)
		}
		batch.Queue(`
			INSERT INTO challenges (`+challengeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.MissionID, c.Order, c.Title, c.Description, kinds, c.PointReward)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert challenges: %w", err)
	}

	ids, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	m.ChallengeIDs = ids.ChallengeIDs
	return nil
}

func scanChallenge(row pgx.Row) (*mission.Challenge, error) {
	var (
		c     mission.Challenge
		kinds []string
	)
	if err := row.Scan(&c.ID, &c.MissionID, &c.Order, &c.Title, &c.Description, &kinds, &c.PointReward); err != nil {
		return nil, err
	}
	c.AllowedProofKinds = make([]mission.ProofKind, len(kinds))
	for i, k := range kinds {
		c.AllowedProofKinds[i] = mission.ProofKind(k)
	}
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type progressRepo struct {
	tx pgx.Tx
}

const progressColumns = `child_id, mission_id, completion_percentage, started_at, completed_at, updated_at`

func (r progressRepo) Get(ctx context.Context, childID, missionID string) (*mission.Progress, error) {
	p, err := scanProgress(r.tx.QueryRow(ctx, `
		SELECT `+progressColumns+` FROM mission_progress
		WHERE child_id = $1 AND mission_id = $2`, childID, missionID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("mission", "GetProgress", shared.ErrNotFound, "progress not found")
		}
		return nil, fmt.Errorf("select progress: %w", err)
	}
	return p, nil
}

// Upsert keeps started_at from the first insert and never overwrites a set
// completed_at.
func (r progressRepo) Upsert(ctx context.Context, p *mission.Progress) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO mission_progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (child_id, mission_id) DO UPDATE SET
			completion_percentage = EXCLUDED.completion_percentage,
			completed_at = COALESCE(mission_progress.completed_at, EXCLUDED.completed_at),
			updated_at = EXCLUDED.updated_at`,
		p.ChildID, p.MissionID, p.CompletionPercentage, p.StartedAt, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NewDomainError("mission", "UpsertProgress", shared.ErrNotFound, "child or mission not found")
		}
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (r progressRepo) ListByChild(ctx context.Context, childID string) ([]*mission.Progress, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+progressColumns+` FROM mission_progress
		WHERE child_id = $1
		ORDER BY started_at DESC`, childID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	out := make([]*mission.Progress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProgress(row pgx.Row) (*mission.Progress, error) {
	var p mission.Progress
	if err := row.Scan(&p.ChildID, &p.MissionID, &p.CompletionPercentage, &p.StartedAt, &p.CompletedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
