// Package store объединяет репозитории всех агрегатов в единицу работы.
// Все изменения баланса, статусов и запасов выполняются внутри одной UnitOfWork.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork представляет единицу работы с транзакционной семантикой.
// Репозитории, полученные из неё, видят одно согласованное состояние.
type UnitOfWork interface {
	Children() child.Repository
	Guardians() child.GuardianRepository
	Ledger() ledger.Repository
	Missions() mission.Repository
	Progress() mission.ProgressRepository
	Submissions() challenge.Repository
	Rewards() reward.Repository
	Redemptions() reward.RedemptionRepository
	Notifications() notification.Repository

	// Commit фиксирует транзакцию.
	Commit(ctx context.Context) error

	// Rollback откатывает транзакцию. Повторный вызов после Commit безопасен.
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory создаёт единицы работы.
type UnitOfWorkFactory interface {
	// Begin начинает новую транзакцию.
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Retrier реализуется фабриками, чьи транзакции могут проиграть гонку
// сериализации. Run повторяет всю единицу работы целиком, поэтому fn
// должна быть безопасна для повторного вызова.
type Retrier interface {
	Retry(ctx context.Context, attempt func(ctx context.Context) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Run выполняет fn в новой единице работы. Ошибка fn откатывает все изменения,
// иначе транзакция фиксируется.
func Run(ctx context.Context, f UnitOfWorkFactory, fn func(uow UnitOfWork) error) error {
	if r, ok := f.(Retrier); ok {
		return r.Retry(ctx, func(ctx context.Context) error {
			return runOnce(ctx, f, fn)
		})
	}
	return runOnce(ctx, f, fn)
}

func runOnce(ctx context.Context, f UnitOfWorkFactory, fn func(uow UnitOfWork) error) (err error) {
	uow, err := f.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	committing := false
	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(ctx)
			panic(p)
		}
		if err != nil && !committing {
			if rbErr := uow.Rollback(ctx); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(uow); err != nil {
		return err
	}
	committing = true
	if err = uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Read выполняет fn только для чтения и всегда откатывает единицу работы.
func Read(ctx context.Context, f UnitOfWorkFactory, fn func(uow UnitOfWork) error) error {
	uow, err := f.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()
	return fn(uow)
}
