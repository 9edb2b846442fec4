// Package ledger описывает журнал изменений баланса очков ребёнка.
//
// Баланс хранится у ребёнка, но изменяется только атомарными операциями
// Credit/Debit этого пакета. Каждое изменение дописывается в журнал.
package ledger

import (
	"context"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// Reason - причина изменения баланса.
type Reason string

const (
	ReasonChallengeApproved Reason = "CHALLENGE_APPROVED"
	ReasonRedemption        Reason = "REDEMPTION"
	ReasonWelcomeBonus      Reason = "WELCOME_BONUS"
)

// IsValid проверяет причину.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonChallengeApproved, ReasonRedemption, ReasonWelcomeBonus:
		return true
	default:
		return false
	}
}

// Entry - неизменяемая запись журнала.
type Entry struct {
	ID           string    `json:"id"`
	ChildID      string    `json:"childId"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balanceAfter"`
	Reason       Reason    `json:"reason"`
	ReferenceID  string    `json:"referenceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewEntry создаёт запись журнала.
func NewEntry(childID string, delta, balanceAfter int, reason Reason, referenceID string, now time.Time) *Entry {
	return &Entry{
		ID:           shared.NewID(),
		ChildID:      childID,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		Reason:       reason,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}
}

// ValidateAmount проверяет, что сумма операции положительна.
func ValidateAmount(amount int) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - атомарные операции над балансом и журнал.
type Repository interface {
	// Credit увеличивает баланс и возвращает новый.
	// Возвращает ErrChildNotFound, если ребёнок не найден.
	Credit(ctx context.Context, childID string, amount int) (int, error)

	// Debit уменьшает баланс, если его хватает. Проверка и изменение
	// выполняются одной атомарной операцией.
	// Возвращает ErrInsufficientFunds с деталями required/available/shortage.
	Debit(ctx context.Context, childID string, amount int) (int, error)

	// Balance возвращает текущий баланс.
	Balance(ctx context.Context, childID string) (int, error)

	// Append дописывает запись в журнал.
	Append(ctx context.Context, e *Entry) error

	// History возвращает последние записи журнала (новые первыми).
	History(ctx context.Context, childID string, limit int) ([]*Entry, error)
}
