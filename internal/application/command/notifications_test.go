package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

func (f *fixture) addNotification(recipientID string, at time.Time) *notification.Notification {
	f.t.Helper()
	n, err := notification.NewNotification(notification.Message{
		RecipientID: recipientID,
		Kind:        notification.KindSystemAnnouncement,
		Payload:     map[string]string{"message": "hola"},
	}, at)
	require.NoError(f.t, err)
	f.run(func(uow store.UnitOfWork) error {
		return uow.Notifications().Create(f.ctx, n)
	})
	return n
}

func (f *fixture) inboxEntry(id string) *notification.Notification {
	f.t.Helper()
	var n *notification.Notification
	require.NoError(f.t, store.Read(f.ctx, f.store, func(uow store.UnitOfWork) error {
		var err error
		n, err = uow.Notifications().GetByID(f.ctx, id)
		return err
	}))
	return n
}

func TestMarkNotificationRead(t *testing.T) {
	f := newFixture(t)
	n := f.addNotification(parent.UserID, testNow.Add(-time.Hour))
	h := NewMarkNotificationReadHandler(f.store, f.clock, nil)

	_, err := h.Handle(f.ctx, MarkNotificationReadCommand{Actor: other, NotificationID: n.ID})
	assert.ErrorIs(t, err, shared.ErrNotificationNotFound, "someone else's entry looks missing")

	_, err = h.Handle(f.ctx, MarkNotificationReadCommand{Actor: admin, NotificationID: n.ID})
	assert.True(t, shared.IsNotFound(err), "admins only see their own inbox")
	assert.False(t, f.inboxEntry(n.ID).Read)

	got, err := h.Handle(f.ctx, MarkNotificationReadCommand{Actor: parent, NotificationID: n.ID})
	require.NoError(t, err)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
	assert.Equal(t, testNow, *got.ReadAt)

	again := NewMarkNotificationReadHandler(f.store, shared.FixedClock{T: testNow.Add(time.Hour)}, nil)
	got, err = again.Handle(f.ctx, MarkNotificationReadCommand{Actor: parent, NotificationID: n.ID})
	require.NoError(t, err)
	assert.Equal(t, testNow, *got.ReadAt, "first read time is kept")

	_, err = h.Handle(f.ctx, MarkNotificationReadCommand{Actor: parent, NotificationID: " "})
	assert.True(t, shared.IsValidation(err))
}

func TestMarkAllNotificationsRead(t *testing.T) {
	f := newFixture(t)
	mine := []*notification.Notification{
		f.addNotification(parent.UserID, testNow.Add(-2*time.Hour)),
		f.addNotification(parent.UserID, testNow.Add(-time.Hour)),
	}
	theirs := f.addNotification(other.UserID, testNow.Add(-time.Hour))
	h := NewMarkAllNotificationsReadHandler(f.store, f.clock, nil)

	marked, err := h.Handle(f.ctx, MarkAllNotificationsReadCommand{Actor: parent})
	require.NoError(t, err)
	assert.Equal(t, 2, marked)
	for _, n := range mine {
		assert.True(t, f.inboxEntry(n.ID).Read)
	}
	assert.False(t, f.inboxEntry(theirs.ID).Read)

	marked, err = h.Handle(f.ctx, MarkAllNotificationsReadCommand{Actor: parent})
	require.NoError(t, err)
	assert.Zero(t, marked)
}
