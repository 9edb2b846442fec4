package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY
// The balance lives on children.points_balance. Credit and Debit are single
// UPDATE statements, so the check and the change cannot be split by another
// transaction.
// ══════════════════════════════════════════════════════════════════════════════

type ledgerRepo struct {
	tx pgx.Tx
}

func (r ledgerRepo) Credit(ctx context.Context, childID string, amount int) (int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}
	var balance int
	err := r.tx.QueryRow(ctx, `
		UPDATE children
		SET points_balance = points_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING points_balance`, childID, amount,
	).Scan(&balance)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrChildNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

func (r ledgerRepo) Debit(ctx context.Context, childID string, amount int) (int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}
	var balance int
	err := r.tx.QueryRow(ctx, `
		UPDATE children
		SET points_balance = points_balance - $2, updated_at = NOW()
		WHERE id = $1 AND points_balance >= $2
		RETURNING points_balance`, childID, amount,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("debit balance: %w", err)
	}

	// No row matched: either the child is gone or the balance is short.
	available, err := r.Balance(ctx, childID)
	if err != nil {
		return 0, err
	}
	return 0, shared.NewInsufficientFunds("ledger", "Debit", amount, available)
}

func (r ledgerRepo) Balance(ctx context.Context, childID string) (int, error) {
	var balance int
	err := r.tx.QueryRow(ctx, `SELECT points_balance FROM children WHERE id = $1`, childID).Scan(&balance)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrChildNotFound
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

func (r ledgerRepo) Append(ctx context.Context, e *ledger.Entry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, child_id, delta, balance_after, reason, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ChildID, e.Delta, e.BalanceAfter, string(e.Reason), e.ReferenceID, e.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrChildNotFound
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r ledgerRepo) History(ctx context.Context, childID string, limit int) ([]*ledger.Entry, error) {
	lim := any(nil)
	if limit > 0 {
		lim = limit
	}
	rows, err := r.tx.Query(ctx, `
		SELECT id, child_id, delta, balance_after, reason, reference_id, created_at
		FROM ledger_entries
		WHERE child_id = $1
		ORDER BY seq DESC
		LIMIT $2`, childID, lim)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	out := make([]*ledger.Entry, 0)
	for rows.Next() {
		var (
			e      ledger.Entry
			reason string
		)
		if err := rows.Scan(&e.ID, &e.ChildID, &e.Delta, &e.BalanceAfter, &reason, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Reason = ledger.Reason(reason)
		out = append(out, &e)
	}
	return out, rows.Err()
}
