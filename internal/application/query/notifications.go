package query

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION INBOX QUERIES
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultInboxLimit is the page size when none is given.
	DefaultInboxLimit = 20

	// MaxInboxLimit caps the page size.
	MaxInboxLimit = 100
)

// Pagination describes one page of a list.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// InboxPage is one page of the caller's inbox, newest first.
type InboxPage struct {
	Notifications []*notification.Notification `json:"notifications"`
	Pagination    Pagination                   `json:"pagination"`
}

// UnreadInbox lists every unread entry.
type UnreadInbox struct {
	Count         int                          `json:"count"`
	Notifications []*notification.Notification `json:"notifications"`
}

// NotificationsHandler answers inbox reads. Every actor, admins included,
// only sees notifications addressed to them.
type NotificationsHandler struct {
	uow store.UnitOfWorkFactory
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(uow store.UnitOfWorkFactory) *NotificationsHandler {
	return &NotificationsHandler{uow: uow}
}

// List returns a page of the inbox. Page and limit below 1 fall back to
// 1 and DefaultInboxLimit; limit is capped at MaxInboxLimit.
func (h *NotificationsHandler) List(ctx context.Context, actor access.Actor, page, limit int) (*InboxPage, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultInboxLimit
	}
	limit = min(limit, MaxInboxLimit)

	out := &InboxPage{Pagination: Pagination{Page: page, Limit: limit}}
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		total, err := uow.Notifications().Count(ctx, actor.UserID, false)
		if err != nil {
			return err
		}
		out.Pagination.Total = total
		out.Notifications, err = uow.Notifications().ListByRecipient(ctx, actor.UserID, notification.InboxFilter{
			Offset: (page - 1) * limit,
			Limit:  limit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Pagination.TotalPages = (out.Pagination.Total + limit - 1) / limit
	return out, nil
}

// Unread returns every unread entry with the count.
func (h *NotificationsHandler) Unread(ctx context.Context, actor access.Actor) (*UnreadInbox, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var list []*notification.Notification
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		var err error
		list, err = uow.Notifications().ListByRecipient(ctx, actor.UserID, notification.InboxFilter{UnreadOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &UnreadInbox{Count: len(list), Notifications: list}, nil
}
