package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK NOTIFICATION READ COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// MarkNotificationReadCommand marks one inbox entry as read.
type MarkNotificationReadCommand struct {
	Actor          access.Actor
	NotificationID string
}

// MarkNotificationReadHandler handles MarkNotificationReadCommand.
type MarkNotificationReadHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewMarkNotificationReadHandler creates a new MarkNotificationReadHandler.
func NewMarkNotificationReadHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *MarkNotificationReadHandler {
	return &MarkNotificationReadHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("mark_notification_read")),
	}
}

// Handle executes the command. Entries addressed to someone else look
// missing. Marking a read entry again is a no-op.
func (h *MarkNotificationReadHandler) Handle(ctx context.Context, cmd MarkNotificationReadCommand) (*notification.Notification, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, err
	}
	if err := required("notification", "MarkRead", "notificationId", cmd.NotificationID); err != nil {
		return nil, err
	}

	var out *notification.Notification
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		n, err := uow.Notifications().GetByID(ctx, cmd.NotificationID)
		if err != nil {
			return err
		}
		if !n.BelongsTo(cmd.Actor.UserID) {
			return shared.ErrNotificationNotFound
		}
		if n.MarkRead(h.clock.Now()) {
			if err := uow.Notifications().Update(ctx, n); err != nil {
				return err
			}
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Debug("notification read",
		logger.String("notification_id", out.ID),
		logger.String("recipient_id", out.RecipientID),
	)
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK ALL NOTIFICATIONS READ COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// MarkAllNotificationsReadCommand clears the caller's unread inbox.
type MarkAllNotificationsReadCommand struct {
	Actor access.Actor
}

// MarkAllNotificationsReadHandler handles MarkAllNotificationsReadCommand.
type MarkAllNotificationsReadHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewMarkAllNotificationsReadHandler creates a new MarkAllNotificationsReadHandler.
func NewMarkAllNotificationsReadHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *MarkAllNotificationsReadHandler {
	return &MarkAllNotificationsReadHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("mark_all_notifications_read")),
	}
}

// Handle executes the command and returns how many entries changed.
func (h *MarkAllNotificationsReadHandler) Handle(ctx context.Context, cmd MarkAllNotificationsReadCommand) (int, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return 0, err
	}

	var marked int
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		var err error
		marked, err = uow.Notifications().MarkAllRead(ctx, cmd.Actor.UserID, h.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}

	h.log.Info("notifications marked read",
		logger.String("recipient_id", cmd.Actor.UserID),
		logger.Int("count", marked),
	)
	return marked, nil
}
