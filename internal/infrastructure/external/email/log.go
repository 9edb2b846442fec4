package email

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// LogDispatcher writes rendered notifications to the log instead of sending
// them. It is used in development and when email is disabled.
type LogDispatcher struct {
	renderer *notification.Renderer
	lang     string
	logger   *slog.Logger
	sent     atomic.Int64
}

var _ notification.Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher creates a LogDispatcher. renderer may be nil, in which
// case only the payload is logged.
func NewLogDispatcher(renderer *notification.Renderer, defaultLanguage string, logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLanguage == "" {
		defaultLanguage = string(shared.LanguageES)
	}
	return &LogDispatcher{
		renderer: renderer,
		lang:     defaultLanguage,
		logger:   logger.With("component", "log_dispatcher"),
	}
}

// Channel implements notification.Dispatcher.
func (d *LogDispatcher) Channel() notification.ChannelType {
	return notification.ChannelTypeLog
}

// Dispatch implements notification.Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, msg notification.Message) notification.DeliveryStatus {
	if err := msg.Validate(); err != nil {
		return notification.Failed(d.Channel(), err)
	}

	attrs := []any{
		"kind", msg.Kind,
		"recipient_id", msg.RecipientID,
	}
	if d.renderer != nil {
		content, err := d.renderer.Render(msg, d.lang)
		if err != nil {
			return notification.Failed(d.Channel(), err)
		}
		attrs = append(attrs, "subject", content.Subject, "text", content.Text)
	} else {
		attrs = append(attrs, "payload", msg.Payload)
	}

	d.logger.InfoContext(ctx, "notification", attrs...)
	n := d.sent.Add(1)
	return notification.Delivered(d.Channel(), "log-"+strconv.FormatInt(n, 10))
}

// Sent reports how many notifications were logged.
func (d *LogDispatcher) Sent() int64 {
	return d.sent.Load()
}
