// Package progression contains the engine services that commands run inside
// a single unit of work: the points ledger, mission progress and rank sync.
package progression

import (
	"context"
	"fmt"

	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT LEDGER
// Every balance change goes through here so the journal never drifts from
// the balance column.
// ══════════════════════════════════════════════════════════════════════════════

// AccountLedger applies credits and debits within a unit of work.
type AccountLedger struct {
	clock shared.Clock
}

// NewAccountLedger creates a new AccountLedger.
func NewAccountLedger(clock shared.Clock) *AccountLedger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &AccountLedger{clock: clock}
}

// Credit adds amount to the child's balance and journals it.
// Returns the new balance.
func (l *AccountLedger) Credit(ctx context.Context, uow store.UnitOfWork, childID string, amount int, reason ledger.Reason, referenceID string) (int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}

	balance, err := uow.Ledger().Credit(ctx, childID, amount)
	if err != nil {
		return 0, err
	}

	entry := ledger.NewEntry(childID, amount, balance, reason, referenceID, l.clock.Now())
	if err := uow.Ledger().Append(ctx, entry); err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount from the child's balance if it is sufficient.
// The check and the mutation are one statement in the repository, so two
// concurrent debits can never both pass against the same points.
func (l *AccountLedger) Debit(ctx context.Context, uow store.UnitOfWork, childID string, amount int, reason ledger.Reason, referenceID string) (int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}

	balance, err := uow.Ledger().Debit(ctx, childID, amount)
	if err != nil {
		return 0, err
	}

	entry := ledger.NewEntry(childID, -amount, balance, reason, referenceID, l.clock.Now())
	if err := uow.Ledger().Append(ctx, entry); err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}
	return balance, nil
}
