package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
	"github.com/superheroes-club/luz-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is the PostgreSQL unit-of-work factory.
type Store struct {
	conn    *Connection
	retrier *retry.Retrier
	log     *logger.Logger
}

var (
	_ store.UnitOfWorkFactory = (*Store)(nil)
	_ store.Retrier           = (*Store)(nil)
)

// NewStore creates a Store. Units of work that lose a serialization race or
// a deadlock are replayed up to three times.
func NewStore(conn *Connection, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("postgres"))
	return &Store{
		conn: conn,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(20*time.Millisecond),
			retry.WithMaxDelay(500*time.Millisecond),
			retry.WithJitter(0.2),
			retry.WithRetryIf(IsRetryable),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("retrying unit of work",
					logger.Int("attempt", attempt),
					logger.Duration("delay", delay),
					logger.Err(err),
				)
			}),
		),
		log: log,
	}
}

// Begin starts a READ COMMITTED transaction. Rows that decisions depend on
// are locked explicitly with the ForUpdate repository methods.
func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

// Retry implements store.Retrier.
func (s *Store) Retry(ctx context.Context, attempt func(ctx context.Context) error) error {
	return s.retrier.Do(ctx, attempt)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Children() child.Repository               { return childRepo{u.tx} }
func (u *unitOfWork) Guardians() child.GuardianRepository      { return guardianRepo{u.tx} }
func (u *unitOfWork) Ledger() ledger.Repository                { return ledgerRepo{u.tx} }
func (u *unitOfWork) Missions() mission.Repository             { return missionRepo{u.tx} }
func (u *unitOfWork) Progress() mission.ProgressRepository     { return progressRepo{u.tx} }
func (u *unitOfWork) Submissions() challenge.Repository        { return submissionRepo{u.tx} }
func (u *unitOfWork) Rewards() reward.Repository               { return rewardRepo{u.tx} }
func (u *unitOfWork) Redemptions() reward.RedemptionRepository { return redemptionRepo{u.tx} }
func (u *unitOfWork) Notifications() notification.Repository   { return notificationRepo{u.tx} }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: postgres: commit: %w", shared.ErrInternal, err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}
