// Package eventhandler contains domain event handlers.
// Handlers run after the originating unit of work has committed and drive
// best-effort side effects. They never fail the original operation.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFY GUARDIAN HANDLER
// Turns progression events into guardian notifications.
// ═══════════════════════════════════════════════════════════════════════════

// NotifyConfig configures the handler.
type NotifyConfig struct {
	// Timeout bounds one dispatch.
	Timeout time.Duration

	// NotifyOnSubmission also notifies when a proof is submitted, not only
	// when it is approved.
	NotifyOnSubmission bool
}

// DefaultNotifyConfig returns the default configuration.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{Timeout: 10 * time.Second, NotifyOnSubmission: true}
}

// NotifyGuardianHandler dispatches notifications for domain events. Wrap
// the dispatcher in an InboxDispatcher to keep them in the guardian inbox.
type NotifyGuardianHandler struct {
	uow        store.UnitOfWorkFactory
	dispatcher notification.Dispatcher
	logger     *slog.Logger
	config     NotifyConfig
}

// NewNotifyGuardianHandler creates a new NotifyGuardianHandler.
func NewNotifyGuardianHandler(
	uow store.UnitOfWorkFactory,
	dispatcher notification.Dispatcher,
	logger *slog.Logger,
	config NotifyConfig,
) *NotifyGuardianHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultNotifyConfig().Timeout
	}
	return &NotifyGuardianHandler{
		uow:        uow,
		dispatcher: dispatcher,
		logger:     logger.With("handler", "notify_guardian"),
		config:     config,
	}
}

// Register subscribes the handler to the events it understands.
func (h *NotifyGuardianHandler) Register(sub shared.EventSubscriber) error {
	types := []shared.EventType{
		shared.EventInitiationCompleted,
		shared.EventSubmissionCreated,
		shared.EventSubmissionApproved,
		shared.EventRankChanged,
		shared.EventRewardRedeemed,
		shared.EventRewardAwarded,
	}
	for _, t := range types {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler. Delivery problems are logged and
// swallowed.
func (h *NotifyGuardianHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	msg, ok := h.messageFor(event)
	if !ok {
		return nil
	}

	childID := msg.Payload["childId"]
	if childID != "" {
		if name, err := h.childName(ctx, childID); err != nil {
			h.logger.Warn("child lookup failed, sending without name",
				"child_id", childID,
				"error", err,
			)
		} else {
			msg.Payload["childName"] = name
		}
	}

	status := h.dispatcher.Dispatch(ctx, msg)
	switch {
	case status.Delivered:
		h.logger.Info("notification delivered",
			"kind", msg.Kind,
			"recipient_id", msg.RecipientID,
			"channel", status.Channel,
			"message_id", status.MessageID,
		)
	case status.Skipped:
		h.logger.Debug("notification skipped",
			"kind", msg.Kind,
			"recipient_id", msg.RecipientID,
			"reason", status.Err,
		)
	default:
		h.logger.Error("notification failed",
			"kind", msg.Kind,
			"recipient_id", msg.RecipientID,
			"channel", status.Channel,
			"error", status.Err,
		)
	}
	return nil
}

// messageFor maps an event to a message. False means nothing to send.
func (h *NotifyGuardianHandler) messageFor(event shared.Event) (notification.Message, bool) {
	switch e := event.(type) {
	case shared.InitiationCompletedEvent:
		return newMessage(e.GuardianID, notification.KindSystemAnnouncement, map[string]string{
			"childId": e.AggregateID(),
			"message": fmt.Sprintf("%s completed the initiation and received %d Luz points.", e.AlterEgoName, e.BonusPoints),
		}), true

	case shared.SubmissionEvent:
		if e.EventType() == shared.EventSubmissionCreated && !h.config.NotifyOnSubmission {
			return notification.Message{}, false
		}
		return newMessage(e.GuardianID, notification.KindChallengeCompleted, map[string]string{
			"childId":        e.ChildID,
			"challengeTitle": e.ChallengeTitle,
			"points":         strconv.Itoa(e.PointsAwarded),
		}), true

	case shared.RankChangedEvent:
		prev, _ := rank.Parse(e.OldRank)
		next, err := rank.Parse(e.NewRank)
		if err != nil || next.Ordinal() <= prev.Ordinal() {
			return notification.Message{}, false
		}
		return newMessage(e.GuardianID, notification.KindRankUp, map[string]string{
			"childId": e.AggregateID(),
			"newRank": e.NewRank,
		}), true

	case shared.RewardGrantedEvent:
		return newMessage(e.GuardianID, notification.KindBadgeEarned, map[string]string{
			"childId":   e.ChildID,
			"badgeName": e.RewardName,
			"points":    strconv.Itoa(e.CostPaid),
		}), true
	}

	h.logger.Debug("no notification for event", "event_type", event.EventType())
	return notification.Message{}, false
}

func newMessage(recipientID string, kind notification.Kind, payload map[string]string) notification.Message {
	return notification.Message{RecipientID: recipientID, Kind: kind, Payload: payload}
}

// childName prefers the superhero name once initiation is done.
func (h *NotifyGuardianHandler) childName(ctx context.Context, childID string) (string, error) {
	var c *child.Child
	err := store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		var err error
		c, err = uow.Children().GetByID(ctx, childID)
		return err
	})
	if err != nil {
		return "", err
	}
	if c.AlterEgoName != "" {
		return c.AlterEgoName, nil
	}
	return c.DisplayName, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// GUARDIAN DIRECTORY
// ═══════════════════════════════════════════════════════════════════════════

// GuardianDirectory resolves notification recipients from stored guardians.
type GuardianDirectory struct {
	uow store.UnitOfWorkFactory
}

var _ notification.Directory = (*GuardianDirectory)(nil)

// NewGuardianDirectory creates a new GuardianDirectory.
func NewGuardianDirectory(uow store.UnitOfWorkFactory) *GuardianDirectory {
	return &GuardianDirectory{uow: uow}
}

// Lookup returns the guardian contact.
func (d *GuardianDirectory) Lookup(ctx context.Context, recipientID string) (notification.Recipient, error) {
	var g *child.Guardian
	err := store.Read(ctx, d.uow, func(uow store.UnitOfWork) error {
		var err error
		g, err = uow.Guardians().GetByID(ctx, recipientID)
		return err
	})
	if err != nil {
		return notification.Recipient{}, err
	}
	return notification.Recipient{
		ID:          g.ID,
		Email:       g.Email,
		DisplayName: g.DisplayName,
		Language:    string(g.Language),
	}, nil
}
