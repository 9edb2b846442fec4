package eventhandler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ═══════════════════════════════════════════════════════════════════════════
// INBOX DISPATCHER
// Stores every message in the recipient's inbox, then delivers it.
// ═══════════════════════════════════════════════════════════════════════════

// InboxDispatcher wraps a delivery channel with the guardian inbox.
type InboxDispatcher struct {
	uow      store.UnitOfWorkFactory
	next     notification.Dispatcher
	renderer *notification.Renderer
	logger   *slog.Logger
	now      func() time.Time
}

var _ notification.Dispatcher = (*InboxDispatcher)(nil)

// NewInboxDispatcher creates an InboxDispatcher. A nil renderer stores
// entries without titles.
func NewInboxDispatcher(
	uow store.UnitOfWorkFactory,
	next notification.Dispatcher,
	renderer *notification.Renderer,
	logger *slog.Logger,
) *InboxDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboxDispatcher{
		uow:      uow,
		next:     next,
		renderer: renderer,
		logger:   logger.With("component", "inbox"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Channel implements notification.Dispatcher.
func (d *InboxDispatcher) Channel() notification.ChannelType { return d.next.Channel() }

// Dispatch saves the entry, delivers through the wrapped channel and records
// the result on the entry. Inbox failures are logged and never block
// delivery.
func (d *InboxDispatcher) Dispatch(ctx context.Context, msg notification.Message) notification.DeliveryStatus {
	entry := d.save(ctx, msg)

	status := d.next.Dispatch(ctx, msg)
	if entry == nil {
		return status
	}

	entry.RecordDelivery(status)
	err := store.Run(ctx, d.uow, func(uow store.UnitOfWork) error {
		return uow.Notifications().Update(ctx, entry)
	})
	if err != nil {
		d.logger.Warn("delivery status not stored",
			"notification_id", entry.ID,
			"error", err,
		)
	}
	return status
}

func (d *InboxDispatcher) save(ctx context.Context, msg notification.Message) *notification.Notification {
	entry, err := notification.NewNotification(msg, d.now())
	if err != nil {
		d.logger.Warn("invalid notification, not stored", "kind", msg.Kind, "error", err)
		return nil
	}
	if d.renderer != nil {
		plain := msg
		plain.Language = ""
		for _, lang := range []string{string(shared.LanguageES), string(shared.LanguageEN)} {
			content, err := d.renderer.Render(plain, lang)
			if err != nil {
				d.logger.Warn("inbox render failed", "kind", msg.Kind, "lang", lang, "error", err)
				continue
			}
			entry.SetContent(lang, content)
		}
	}

	err = d.create(ctx, entry)
	if errors.Is(err, shared.ErrChildNotFound) && entry.ChildID != "" {
		// The child is gone; keep the entry for the guardian without the link.
		entry.ChildID = ""
		err = d.create(ctx, entry)
	}
	if err != nil {
		d.logger.Error("notification not stored",
			"kind", msg.Kind,
			"recipient_id", msg.RecipientID,
			"error", err,
		)
		return nil
	}
	return entry
}

func (d *InboxDispatcher) create(ctx context.Context, entry *notification.Notification) error {
	return store.Run(ctx, d.uow, func(uow store.UnitOfWork) error {
		return uow.Notifications().Create(ctx, entry)
	})
}
