package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
)

func seedInbox(t *testing.T, s *memory.Store, recipientID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		for i := 0; i < n; i++ {
			entry, err := notification.NewNotification(notification.Message{
				RecipientID: recipientID,
				Kind:        notification.KindSystemAnnouncement,
			}, testNow.Add(time.Duration(i)*time.Minute))
			if err != nil {
				return err
			}
			if err := uow.Notifications().Create(ctx, entry); err != nil {
				return err
			}
			ids = append(ids, entry.ID)
		}
		return nil
	}))
	return ids
}

func TestNotifications_ListPaginates(t *testing.T) {
	s := memory.NewStore()
	ids := seedInbox(t, s, parent.UserID, 5)
	seedInbox(t, s, other.UserID, 2)
	h := NewNotificationsHandler(s)
	ctx := context.Background()

	page, err := h.List(ctx, parent, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, page.Pagination)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, ids[2], page.Notifications[0].ID, "newest first")
	assert.Equal(t, ids[1], page.Notifications[1].ID)

	defaults, err := h.List(ctx, parent, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Pagination.Page)
	assert.Equal(t, DefaultInboxLimit, defaults.Pagination.Limit)
	assert.Len(t, defaults.Notifications, 5)

	capped, err := h.List(ctx, parent, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxInboxLimit, capped.Pagination.Limit)

	past, err := h.List(ctx, parent, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, past.Notifications)
	assert.Equal(t, 5, past.Pagination.Total)
}

func TestNotifications_Unread(t *testing.T) {
	s := memory.NewStore()
	ids := seedInbox(t, s, parent.UserID, 3)
	ctx := context.Background()
	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		n, err := uow.Notifications().GetByID(ctx, ids[0])
		if err != nil {
			return err
		}
		n.MarkRead(testNow)
		return uow.Notifications().Update(ctx, n)
	}))
	h := NewNotificationsHandler(s)

	unread, err := h.Unread(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 2, unread.Count)
	for _, n := range unread.Notifications {
		assert.False(t, n.Read)
	}

	empty, err := h.Unread(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.NotNil(t, empty.Notifications)
}
