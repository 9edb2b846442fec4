package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type childRepo struct {
	tx pgx.Tx
}

const childColumns = `
	id, guardian_id, display_name, alter_ego_name, age_years, points_balance, rank,
	initiation_completed, initiated_at,
	requires_parent_assistance, can_browse_community, can_post_to_community, can_view_global_map,
	archangel_id, secret_code, avatar_url, country_code, created_at, updated_at`

func (r childRepo) Create(ctx context.Context, c *child.Child) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO children (`+childColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		c.ID, c.GuardianID, c.DisplayName, c.AlterEgoName, c.AgeYears, c.PointsBalance, string(c.Rank),
		c.InitiationCompleted, c.InitiatedAt,
		c.Safety.RequiresParentAssistance, c.Safety.CanBrowseCommunity,
		c.Safety.CanPostToCommunity, c.Safety.CanViewGlobalMap,
		c.ArchangelID, c.SecretCode, c.AvatarURL, c.CountryCode, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			if pgConstraint(err) == "ux_children_secret_code" {
				return shared.ErrSecretCodeAlreadyExists
			}
			return shared.NewDomainError("child", "Create", shared.ErrAlreadyExists, "child already exists")
		}
		return fmt.Errorf("insert child: %w", err)
	}
	return nil
}

func (r childRepo) GetByID(ctx context.Context, id string) (*child.Child, error) {
	return r.getOne(ctx, `SELECT `+childColumns+` FROM children WHERE id = $1`, id, shared.ErrChildNotFound)
}

func (r childRepo) GetByIDForUpdate(ctx context.Context, id string) (*child.Child, error) {
	return r.getOne(ctx, `SELECT `+childColumns+` FROM children WHERE id = $1 FOR UPDATE`, id, shared.ErrChildNotFound)
}

func (r childRepo) GetBySecretCode(ctx context.Context, code string) (*child.Child, error) {
	return r.getOne(ctx, `SELECT `+childColumns+` FROM children WHERE secret_code = $1`, code, shared.ErrSecretCodeNotFound)
}

func (r childRepo) getOne(ctx context.Context, query, arg string, notFound error) (*child.Child, error) {
	c, err := scanChild(r.tx.QueryRow(ctx, query, arg))
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("select child: %w", err)
	}
	return c, nil
}

func (r childRepo) ListByGuardian(ctx context.Context, guardianID string) ([]*child.Child, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+childColumns+` FROM children
		WHERE guardian_id = $1
		ORDER BY created_at, id`, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	out := make([]*child.Child, 0)
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r childRepo) ListIDs(ctx context.Context, opts child.ListOptions) ([]string, error) {
	limit := any(nil)
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := r.tx.Query(ctx, `SELECT id FROM children ORDER BY id OFFSET $1 LIMIT $2`, opts.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan child ids: %w", err)
	}
	return ids, nil
}

func (r childRepo) UpdateProfile(ctx context.Context, c *child.Child) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE children SET
			display_name = $2,
			alter_ego_name = $3,
			age_years = $4,
			initiation_completed = $5,
			initiated_at = $6,
			requires_parent_assistance = $7,
			can_browse_community = $8,
			can_post_to_community = $9,
			can_view_global_map = $10,
			archangel_id = $11,
			avatar_url = $12,
			country_code = $13,
			updated_at = $14
		WHERE id = $1`,
		c.ID, c.DisplayName, c.AlterEgoName, c.AgeYears, c.InitiationCompleted, c.InitiatedAt,
		c.Safety.RequiresParentAssistance, c.Safety.CanBrowseCommunity,
		c.Safety.CanPostToCommunity, c.Safety.CanViewGlobalMap,
		c.ArchangelID, c.AvatarURL, c.CountryCode, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update child: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrChildNotFound
	}
	return nil
}

func (r childRepo) UpdateRank(ctx context.Context, id string, rk rank.Rank) error {
	tag, err := r.tx.Exec(ctx, `UPDATE children SET rank = $2, updated_at = $3 WHERE id = $1`,
		id, string(rk), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update rank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrChildNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for submissions, redemptions,
// progress and ledger entries.
func (r childRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM children WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrChildNotFound
	}
	return nil
}

func scanChild(row pgx.Row) (*child.Child, error) {
	var (
		c  child.Child
		rk string
	)
	err := row.Scan(
		&c.ID, &c.GuardianID, &c.DisplayName, &c.AlterEgoName, &c.AgeYears, &c.PointsBalance, &rk,
		&c.InitiationCompleted, &c.InitiatedAt,
		&c.Safety.RequiresParentAssistance, &c.Safety.CanBrowseCommunity,
		&c.Safety.CanPostToCommunity, &c.Safety.CanViewGlobalMap,
		&c.ArchangelID, &c.SecretCode, &c.AvatarURL, &c.CountryCode, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Rank = rank.Rank(rk)
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GUARDIAN REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type guardianRepo struct {
	tx pgx.Tx
}

func (r guardianRepo) Upsert(ctx context.Context, g *child.Guardian) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO guardians (id, email, display_name, language, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			language = EXCLUDED.language,
			updated_at = EXCLUDED.updated_at`,
		g.ID, g.Email, g.DisplayName, string(g.Language), g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert guardian: %w", err)
	}
	return nil
}

func (r guardianRepo) GetByID(ctx context.Context, id string) (*child.Guardian, error) {
	var (
		g    child.Guardian
		lang string
	)
	err := r.tx.QueryRow(ctx, `
		SELECT id, email, display_name, language, updated_at
		FROM guardians WHERE id = $1`, id,
	).Scan(&g.ID, &g.Email, &g.DisplayName, &lang, &g.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGuardianNotFound
		}
		return nil, fmt.Errorf("select guardian: %w", err)
	}
	g.Language = shared.Language(lang)
	return &g, nil
}
