package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type rewardRepo struct {
	tx pgx.Tx
}

const rewardColumns = `
	id, code, kind, name_es, name_en, description_es, description_en,
	cost, icon_url, rarity, redeemable, remaining_stock, created_at`

func (r rewardRepo) Create(ctx context.Context, rw *reward.Reward) error {
	if err := rw.Validate(); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rw.ID, rw.Code, string(rw.Kind), rw.NameES, rw.NameEN, rw.DescriptionES, rw.DescriptionEN,
		rw.Cost, rw.IconURL, string(rw.Rarity), rw.Redeemable, rw.RemainingStock, rw.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("reward", "Create", shared.ErrAlreadyExists, "reward code already exists")
		}
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

func (r rewardRepo) GetByID(ctx context.Context, id string) (*reward.Reward, error) {
	return r.getOne(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id)
}

func (r rewardRepo) GetByIDForUpdate(ctx context.Context, id string) (*reward.Reward, error) {
	return r.getOne(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE`, id)
}

func (r rewardRepo) GetByCode(ctx context.Context, code string) (*reward.Reward, error) {
	return r.getOne(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE code = $1`, code)
}

func (r rewardRepo) getOne(ctx context.Context, query, arg string) (*reward.Reward, error) {
	rw, err := scanReward(r.tx.QueryRow(ctx, query, arg))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRewardNotFound
		}
		return nil, fmt.Errorf("select reward: %w", err)
	}
	return rw, nil
}

// List filters in Go and orders with reward.SortCatalog. The catalog is
// small and rarity order is not alphabetical.
func (r rewardRepo) List(ctx context.Context, f reward.CatalogFilter) ([]*reward.Reward, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+rewardColumns+` FROM rewards`)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	out := make([]*reward.Reward, 0)
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		if f.Matches(rw) {
			out = append(out, rw)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reward.SortCatalog(out)
	return out, nil
}

// DecrementStock is one conditional UPDATE. Unlimited rewards match the
// NULL branch and stay NULL.
func (r rewardRepo) DecrementStock(ctx context.Context, id string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE rewards
		SET remaining_stock = remaining_stock - 1
		WHERE id = $1 AND (remaining_stock IS NULL OR remaining_stock > 0)`, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rewards WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check reward: %w", err)
	}
	if !exists {
		return shared.ErrRewardNotFound
	}
	return shared.ErrRewardOutOfStock
}

func scanReward(row pgx.Row) (*reward.Reward, error) {
	var (
		rw     reward.Reward
		kind   string
		rarity string
	)
	err := row.Scan(
		&rw.ID, &rw.Code, &kind, &rw.NameES, &rw.NameEN, &rw.DescriptionES, &rw.DescriptionEN,
		&rw.Cost, &rw.IconURL, &rarity, &rw.Redeemable, &rw.RemainingStock, &rw.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rw.Kind = reward.Kind(kind)
	rw.Rarity = reward.Rarity(rarity)
	return &rw, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type redemptionRepo struct {
	tx pgx.Tx
}

const redemptionColumns = `id, child_id, reward_id, reward_code, source, cost_paid, redeemed_at, shipping, metadata`

func (r redemptionRepo) Create(ctx context.Context, red *reward.Redemption) error {
	var shipping []byte
	if red.Shipping != nil {
		b, err := json.Marshal(red.Shipping)
		if err != nil {
			return fmt.Errorf("marshal shipping: %w", err)
		}
		shipping = b
	}
	meta := red.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.tx.Exec(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		red.ID, red.ChildID, red.RewardID, red.RewardCode, string(red.Source), red.CostPaid,
		red.RedeemedAt, shipping, metadata,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			if pgConstraint(err) == "redemptions_reward_id_fkey" {
				return shared.ErrRewardNotFound
			}
			return shared.ErrChildNotFound
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (r redemptionRepo) ListByChild(ctx context.Context, childID string) ([]*reward.Redemption, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE child_id = $1
		ORDER BY redeemed_at DESC, id DESC`, childID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	out := make([]*reward.Redemption, 0)
	for rows.Next() {
		var (
			red                reward.Redemption
			source             string
			shipping, metadata []byte
		)
		if err := rows.Scan(&red.ID, &red.ChildID, &red.RewardID, &red.RewardCode, &source,
			&red.CostPaid, &red.RedeemedAt, &shipping, &metadata); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		red.Source = reward.Source(source)
		if len(shipping) > 0 {
			red.Shipping = &reward.ShippingInfo{}
			if err := json.Unmarshal(shipping, red.Shipping); err != nil {
				return nil, fmt.Errorf("decode shipping: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &red.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
			if len(red.Metadata) == 0 {
				red.Metadata = nil
			}
		}
		out = append(out, &red)
	}
	return out, rows.Err()
}

func (r redemptionRepo) HasReward(ctx context.Context, childID, rewardCode string) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM redemptions WHERE child_id = $1 AND reward_code = $2)`,
		childID, rewardCode,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check redemption: %w", err)
	}
	return ok, nil
}
