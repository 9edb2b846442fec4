package notification

import (
	"context"
	"strings"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOX ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Notification - уведомление во входящих опекуна.
// Сохраняется до отправки; результат доставки записывается после.
type Notification struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipientId"`
	ChildID     string            `json:"childId,omitempty"`
	Kind        Kind              `json:"type"`
	Payload     map[string]string `json:"payload"`

	// Заголовок и текст на обоих языках; пусто, если рендерер не задан.
	TitleES string `json:"titleEs"`
	TitleEN string `json:"titleEn"`
	BodyES  string `json:"messageEs"`
	BodyEN  string `json:"messageEn"`

	Read   bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`

	// Delivered - внешний канал подтвердил доставку.
	Delivered     bool        `json:"emailSent"`
	Channel       ChannelType `json:"channel,omitempty"`
	DeliveryError string      `json:"deliveryError,omitempty"`
	DeliveredAt   *time.Time  `json:"emailSentAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewNotification создаёт непрочитанную запись из сообщения.
func NewNotification(msg Message, now time.Time) (*Notification, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	payload := make(map[string]string, len(msg.Payload))
	for k, v := range msg.Payload {
		payload[k] = v
	}
	return &Notification{
		ID:          shared.NewID(),
		RecipientID: msg.RecipientID,
		ChildID:     msg.Payload["childId"],
		Kind:        msg.Kind,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}

// SetContent сохраняет отрендеренный текст для языка ("es" или "en").
func (n *Notification) SetContent(lang string, c Content) {
	if strings.HasPrefix(lang, "en") {
		n.TitleEN, n.BodyEN = c.Subject, c.Text
		return
	}
	n.TitleES, n.BodyES = c.Subject, c.Text
}

// Title возвращает заголовок на языке с запасным вариантом.
func (n *Notification) Title(lang shared.Language) string {
	if lang == shared.LanguageEN && n.TitleEN != "" {
		return n.TitleEN
	}
	if n.TitleES != "" {
		return n.TitleES
	}
	return n.TitleEN
}

// RecordDelivery записывает результат отправки.
// Пропущенная доставка не считается ошибкой.
func (n *Notification) RecordDelivery(s DeliveryStatus) {
	n.Channel = s.Channel
	n.Delivered = s.Delivered
	n.DeliveryError = ""
	n.DeliveredAt = nil
	if s.Delivered {
		at := s.At
		n.DeliveredAt = &at
		return
	}
	if s.Err != nil && !s.Skipped {
		n.DeliveryError = s.Err.Error()
	}
}

// MarkRead отмечает запись прочитанной. Возвращает false, если она уже
// была прочитана; время первого прочтения не меняется.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &now
	return true
}

// BelongsTo проверяет получателя.
func (n *Notification) BelongsTo(recipientID string) bool {
	return n.RecipientID == recipientID
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// InboxFilter - параметры выборки входящих.
type InboxFilter struct {
	// UnreadOnly - только непрочитанные.
	UnreadOnly bool

	// Offset и Limit - пагинация; Limit <= 0 означает "без ограничения".
	Offset int
	Limit  int
}

// Repository хранит входящие опекунов.
type Repository interface {
	// Create сохраняет новую запись.
	Create(ctx context.Context, n *Notification) error

	// GetByID возвращает запись.
	// Возвращает ErrNotificationNotFound, если записи нет.
	GetByID(ctx context.Context, id string) (*Notification, error)

	// Update сохраняет статус прочтения и доставки.
	Update(ctx context.Context, n *Notification) error

	// ListByRecipient возвращает записи от новых к старым.
	ListByRecipient(ctx context.Context, recipientID string, f InboxFilter) ([]*Notification, error)

	// Count считает записи получателя (все или только непрочитанные).
	Count(ctx context.Context, recipientID string, unreadOnly bool) (int, error)

	// MarkAllRead отмечает все непрочитанные и возвращает их количество.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
}
