package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newChild(t *testing.T, seed int64) *child.Child {
	t.Helper()
	c, err := child.NewChild(child.NewChildParams{
		GuardianID:  "guardian-1",
		DisplayName: "Lucía",
		AgeYears:    8,
		Random:      shared.NewSeededRandom(seed),
		Now:         testNow,
	})
	require.NoError(t, err)
	return c
}

func TestStore_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := newChild(t, 1)
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Children().Create(ctx, c)
	}))

	boom := errors.New("boom")
	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if _, err := uow.Ledger().Credit(ctx, c.ID, 500); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.Read(ctx, s, func(uow store.UnitOfWork) error {
		balance, err := uow.Ledger().Balance(ctx, c.ID)
		assert.Equal(t, 0, balance)
		return err
	}))
}

func TestStore_ClosedUnitRejectsUse(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(ctx))

	_, err = uow.Children().GetByID(ctx, "x")
	assert.ErrorIs(t, err, ErrUnitClosed)
	assert.ErrorIs(t, uow.Commit(ctx), ErrUnitClosed)
	assert.NoError(t, uow.Rollback(ctx))
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := newChild(t, 1)
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Children().Create(ctx, c)
	}))

	require.NoError(t, store.Read(ctx, s, func(uow store.UnitOfWork) error {
		got, err := uow.Children().GetByID(ctx, c.ID)
		require.NoError(t, err)
		got.PointsBalance = 9999
		again, err := uow.Children().GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.PointsBalance)
		return nil
	}))
}

func TestLedger_DebitIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := newChild(t, 1)

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Children().Create(ctx, c); err != nil {
			return err
		}
		_, err := uow.Ledger().Credit(ctx, c.ID, 100)
		return err
	}))

	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		_, err := uow.Ledger().Debit(ctx, c.ID, 150)
		return err
	})
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, 50, de.Details["shortage"])

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		balance, err := uow.Ledger().Debit(ctx, c.ID, 100)
		assert.Equal(t, 0, balance)
		return err
	}))
}

func TestChildren_SecretCodeUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := newChild(t, 1)
	b := newChild(t, 1)
	require.Equal(t, a.SecretCode, b.SecretCode)

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Children().Create(ctx, a)
	}))
	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Children().Create(ctx, b)
	})
	assert.ErrorIs(t, err, shared.ErrSecretCodeAlreadyExists)
}

func TestSubmissions_ActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ch := &mission.Challenge{ID: "ch-1", MissionID: "m-1", AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto}, PointReward: 25}

	first, err := challenge.NewSubmission("child-1", ch, mission.ProofPhoto, []string{"a"}, testNow)
	require.NoError(t, err)
	second, err := challenge.NewSubmission("child-1", ch, mission.ProofPhoto, []string{"b"}, testNow)
	require.NoError(t, err)

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Submissions().Create(ctx, first)
	}))
	err = store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Submissions().Create(ctx, second)
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateSubmission)

	require.NoError(t, first.Review(challenge.DecisionReject, "admin", "", 25, testNow))
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Submissions().SaveReview(ctx, first); err != nil {
			return err
		}
		return uow.Submissions().Create(ctx, second)
	}))

	// SaveReview is conditional on PENDING.
	err = store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Submissions().SaveReview(ctx, first)
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyReviewed)
}

func TestRewards_DecrementStock(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	one := 1
	limited := &reward.Reward{ID: "r-1", Code: "LIM", Kind: reward.KindDigital, Rarity: reward.RarityCommon, RemainingStock: &one, Redeemable: true}
	unlimited := &reward.Reward{ID: "r-2", Code: "UNL", Kind: reward.KindDigital, Rarity: reward.RarityCommon, Redeemable: true}

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Rewards().Create(ctx, limited); err != nil {
			return err
		}
		return uow.Rewards().Create(ctx, unlimited)
	}))

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Rewards().DecrementStock(ctx, "r-1"); err != nil {
			return err
		}
		return uow.Rewards().DecrementStock(ctx, "r-2")
	}))

	err := store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Rewards().DecrementStock(ctx, "r-1")
	})
	assert.ErrorIs(t, err, shared.ErrOutOfStock)

	require.NoError(t, store.Read(ctx, s, func(uow store.UnitOfWork) error {
		r, err := uow.Rewards().GetByID(ctx, "r-2")
		require.NoError(t, err)
		assert.Nil(t, r.RemainingStock)
		return nil
	}))
}

func TestProgress_UpsertNeverClearsCompletion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := mission.NewProgress("child-1", "m-1", testNow)
	p.Apply(100, testNow)

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Progress().Upsert(ctx, p)
	}))

	reset := mission.NewProgress("child-1", "m-1", testNow)
	reset.CompletionPercentage = 75
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Progress().Upsert(ctx, reset)
	}))

	require.NoError(t, store.Read(ctx, s, func(uow store.UnitOfWork) error {
		got, err := uow.Progress().Get(ctx, "child-1", "m-1")
		require.NoError(t, err)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, testNow, *got.CompletedAt)
		return nil
	}))
}

func TestInbox_PagingAndReadState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	c := newChild(t, 1)

	ids := make([]string, 0, 3)
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Children().Create(ctx, c); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			n, err := notification.NewNotification(notification.Message{
				RecipientID: c.GuardianID,
				Kind:        notification.KindRankUp,
				Payload:     map[string]string{"childId": c.ID},
			}, testNow.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
			ids = append(ids, n.ID)
			if err := uow.Notifications().Create(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		page, err := uow.Notifications().ListByRecipient(ctx, c.GuardianID, notification.InboxFilter{Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, ids[1], page[0].ID, "newest first")

		n, err := uow.Notifications().GetByID(ctx, ids[2])
		require.NoError(t, err)
		n.MarkRead(testNow.Add(time.Hour))
		n.TitleES = "not persisted by Update"
		require.NoError(t, uow.Notifications().Update(ctx, n))

		unread, err := uow.Notifications().Count(ctx, c.GuardianID, true)
		require.NoError(t, err)
		assert.Equal(t, 2, unread)

		marked, err := uow.Notifications().MarkAllRead(ctx, c.GuardianID, testNow.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, marked)
		return nil
	}))

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		return uow.Children().Delete(ctx, c.ID)
	}))
	require.NoError(t, store.Read(ctx, s, func(uow store.UnitOfWork) error {
		n, err := uow.Notifications().GetByID(ctx, ids[2])
		require.NoError(t, err)
		assert.Empty(t, n.TitleES)
		assert.Empty(t, n.ChildID)
		assert.Equal(t, testNow.Add(time.Hour), *n.ReadAt, "first read time is kept")

		unread, err := uow.Notifications().Count(ctx, c.GuardianID, true)
		require.NoError(t, err)
		assert.Zero(t, unread)

		_, err = uow.Notifications().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotificationNotFound)
		return nil
	}))
}
