// Package notification содержит доменную модель уведомлений для родителей.
package notification

import (
	"errors"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет вид уведомления (шаблон).
type Kind string

const (
	// KindMissionReleased - опубликована миссия месяца.
	KindMissionReleased Kind = "MISSION_RELEASED"

	// KindChallengeCompleted - задание отправлено или одобрено.
	KindChallengeCompleted Kind = "CHALLENGE_COMPLETED"

	// KindRankUp - ребёнок получил новый ранг.
	KindRankUp Kind = "RANK_UP"

	// KindBadgeEarned - ребёнок получил награду или значок.
	KindBadgeEarned Kind = "BADGE_EARNED"

	// KindEventReminder - напоминание о событии.
	KindEventReminder Kind = "EVENT_REMINDER"

	// KindSubscriptionExpiring - подписка скоро истекает.
	KindSubscriptionExpiring Kind = "SUBSCRIPTION_EXPIRING"

	// KindSystemAnnouncement - системное объявление.
	KindSystemAnnouncement Kind = "SYSTEM_ANNOUNCEMENT"
)

// AllKinds возвращает все виды уведомлений.
func AllKinds() []Kind {
	return []Kind{
		KindMissionReleased, KindChallengeCompleted, KindRankUp, KindBadgeEarned,
		KindEventReminder, KindSubscriptionExpiring, KindSystemAnnouncement,
	}
}

// IsValid проверяет вид уведомления.
func (k Kind) IsValid() bool {
	for _, x := range AllKinds() {
		if x == k {
			return true
		}
	}
	return false
}

// String возвращает строковое представление.
func (k Kind) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Message - уведомление к отправке.
type Message struct {
	// RecipientID - ID опекуна.
	RecipientID string

	// Kind - вид уведомления.
	Kind Kind

	// Language - "es" или "en". Пусто - язык получателя.
	Language string

	// Payload - данные для шаблона (childName, challengeTitle, points, ...).
	Payload map[string]string
}

// Validate проверяет сообщение.
func (m Message) Validate() error {
	if strings.TrimSpace(m.RecipientID) == "" {
		return ErrInvalidRecipientID
	}
	if !m.Kind.IsValid() {
		return ErrInvalidKind
	}
	return nil
}

// Get возвращает значение из payload или запасное значение.
func (m Message) Get(key, fallback string) string {
	if v, ok := m.Payload[key]; ok && v != "" {
		return v
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidKind - невалидный вид уведомления.
	ErrInvalidKind = errors.New("invalid notification kind")

	// ErrInvalidRecipientID - невалидный ID получателя.
	ErrInvalidRecipientID = errors.New("invalid recipient id: cannot be empty")
)
