package notification

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType определяет канал доставки уведомлений.
type ChannelType string

const (
	// ChannelTypeEmail - доставка по email (Amazon SES).
	ChannelTypeEmail ChannelType = "email"

	// ChannelTypeLog - запись в лог (разработка, тесты).
	ChannelTypeLog ChannelType = "log"
)

// IsValid проверяет корректность типа канала.
func (ct ChannelType) IsValid() bool {
	return ct == ChannelTypeEmail || ct == ChannelTypeLog
}

// String возвращает строковое представление типа канала.
func (ct ChannelType) String() string {
	return string(ct)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY STATUS
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryStatus - результат доставки "по возможности".
// Ошибка доставки никогда не откатывает изменения состояния.
type DeliveryStatus struct {
	// Delivered - успешно ли доставлено.
	Delivered bool

	// Skipped - доставка не требовалась (канал выключен, нет адреса).
	Skipped bool

	// MessageID - ID сообщения у провайдера.
	MessageID string

	// Channel - канал доставки.
	Channel ChannelType

	// At - время попытки.
	At time.Time

	// Err - ошибка доставки (если Delivered = false).
	Err error
}

// Delivered создаёт статус успешной доставки.
func Delivered(channel ChannelType, messageID string) DeliveryStatus {
	return DeliveryStatus{
		Delivered: true,
		MessageID: messageID,
		Channel:   channel,
		At:        time.Now().UTC(),
	}
}

// Failed создаёт статус неудачной доставки.
func Failed(channel ChannelType, err error) DeliveryStatus {
	return DeliveryStatus{
		Channel: channel,
		At:      time.Now().UTC(),
		Err:     err,
	}
}

// Skipped создаёт статус пропущенной доставки.
func Skipped(channel ChannelType, reason error) DeliveryStatus {
	return DeliveryStatus{
		Skipped: true,
		Channel: channel,
		At:      time.Now().UTC(),
		Err:     reason,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher принимает (получатель, вид, данные) и доставляет уведомление.
// Реализации не должны блокировать вызывающего дольше, чем требует контекст.
type Dispatcher interface {
	// Channel возвращает тип канала.
	Channel() ChannelType

	// Dispatch доставляет сообщение и возвращает статус.
	Dispatch(ctx context.Context, msg Message) DeliveryStatus
}

// Recipient - контакт получателя.
type Recipient struct {
	ID          string
	Email       string
	DisplayName string
	Language    string
}

// Directory находит контакт получателя по ID.
type Directory interface {
	Lookup(ctx context.Context, recipientID string) (Recipient, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrChannelDisabled - канал выключен конфигурацией.
	ErrChannelDisabled = errors.New("notification channel is disabled")

	// ErrNoAddress - у получателя нет адреса для канала.
	ErrNoAddress = errors.New("recipient has no address for channel")

	// ErrDeliveryFailed - доставка не удалась.
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrTemplateError - ошибка в шаблоне сообщения.
	ErrTemplateError = errors.New("message template error")
)
