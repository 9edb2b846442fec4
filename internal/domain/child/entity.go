// Package child содержит доменную модель ребёнка - участника программы.
// Баланс очков здесь только читается: менять его может исключительно ledger.
package child

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/safety"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinAge и MaxAge - допустимый возраст участника.
	MinAge = 0
	MaxAge = 18

	// MaxNameLength - максимальная длина имени и имени супергероя.
	MaxNameLength = 100

	// SecretCodeLength - длина секретного кода для инициации.
	SecretCodeLength = 6

	// SecretCodeAlphabet исключает похожие символы (0/O, 1/I).
	SecretCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxAvatarURLLength - ограничение на ссылку аватара.
	MaxAvatarURLLength = 2048
)

// Названия полей профиля, как они видны клиентам API.
const (
	FieldDisplayName = "name"
	FieldAge         = "age"
	FieldAvatarURL   = "avatarUrl"
	FieldCountryCode = "countryCode"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Child - ребёнок, участвующий в программе.
type Child struct {
	ID           string `json:"id"`
	GuardianID   string `json:"parentId"`
	DisplayName  string `json:"displayName"`
	AlterEgoName string `json:"alterEgoName,omitempty"`
	AgeYears     int    `json:"ageYears"`

	// PointsBalance - текущий баланс. Изменяется только через ledger.
	PointsBalance int `json:"pointsBalance"`

	// Rank - производное значение, см. SyncRank.
	Rank rank.Rank `json:"rank"`

	InitiationCompleted bool       `json:"initiationCompleted"`
	InitiatedAt         *time.Time `json:"initiatedAt,omitempty"`

	Safety safety.Settings `json:"safetySettings"`

	ArchangelID string `json:"archangelId,omitempty"`
	SecretCode  string `json:"secretCode,omitempty"`

	AvatarURL   string `json:"avatarUrl,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewChildParams - параметры для создания ребёнка.
type NewChildParams struct {
	ID          string
	GuardianID  string
	DisplayName string
	AgeYears    int

	// Archangels - кандидаты для предварительного назначения наставника.
	Archangels []string

	// Random - источник случайности (для детерминированных тестов).
	Random shared.RandomSource

	Now time.Time
}

// NewChild создаёт ребёнка с настройками безопасности по возрасту,
// случайным наставником и начальным рангом, выведенным из пустой истории.
func NewChild(p NewChildParams) (*Child, error) {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, shared.NewDomainError("child", "Create", shared.ErrValidation,
			"display name must be 1-100 characters")
	}
	if p.AgeYears < MinAge || p.AgeYears > MaxAge {
		return nil, shared.ErrInvalidAge
	}
	if strings.TrimSpace(p.GuardianID) == "" {
		return nil, shared.NewDomainError("child", "Create", shared.ErrValidation, "guardian is required")
	}

	rnd := p.Random
	if rnd == nil {
		rnd = shared.NewRandom()
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id := p.ID
	if id == "" {
		id = shared.NewID()
	}

	c := &Child{
		ID:          id,
		GuardianID:  p.GuardianID,
		DisplayName: name,
		AgeYears:    p.AgeYears,
		Rank:        rank.Derive(rank.History{}),
		Safety:      safety.DefaultsFor(p.AgeYears),
		SecretCode:  GenerateSecretCode(rnd),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(p.Archangels) > 0 {
		c.ArchangelID = p.Archangels[rnd.Intn(len(p.Archangels))]
	}

	return c, nil
}

// GenerateSecretCode генерирует код из SecretCodeAlphabet.
func GenerateSecretCode(rnd shared.RandomSource) string {
	var b strings.Builder
	b.Grow(SecretCodeLength)
	for i := 0; i < SecretCodeLength; i++ {
		b.WriteByte(SecretCodeAlphabet[rnd.Intn(len(SecretCodeAlphabet))])
	}
	return b.String()
}

// NormalizeSecretCode приводит введённый код к каноническому виду.
func NormalizeSecretCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ══════════════════════════════════════════════════════════════════════════════
// BEHAVIOUR
// ══════════════════════════════════════════════════════════════════════════════

// BelongsTo проверяет, что ребёнок принадлежит опекуну.
func (c *Child) BelongsTo(guardianID string) bool {
	return c.GuardianID == guardianID
}

// UpdateSafety применяет частичное изменение настроек, если оно
// не ослабляет значения по умолчанию для возраста.
// Возвращает список изменённых полей.
func (c *Child) UpdateSafety(u safety.Update, now time.Time) ([]string, error) {
	if err := safety.ValidateOverride(c.AgeYears, u).Err("UpdateSafety"); err != nil {
		return nil, err
	}
	next, changed := u.Apply(c.Safety)
	c.Safety = next
	if len(changed) > 0 {
		c.UpdatedAt = now
	}
	return changed, nil
}

// ProfileUpdate - частичное изменение профиля. nil означает "не менять".
type ProfileUpdate struct {
	DisplayName *string
	AgeYears    *int
	AvatarURL   *string
	CountryCode *string
}

// IsEmpty возвращает true, если ни одно поле не задано.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.AgeYears == nil && u.AvatarURL == nil && u.CountryCode == nil
}

// ProfileChanges - что изменилось после UpdateProfile.
type ProfileChanges struct {
	Fields []string `json:"fields"`

	// Safety - флаги, ужесточённые из-за смены возраста.
	Safety []string `json:"safety"`
}

// UpdateProfile применяет изменение профиля целиком или не применяет вовсе.
// При смене возраста настройки безопасности приводятся к новой
// возрастной группе через safety.Clamp.
func (c *Child) UpdateProfile(u ProfileUpdate, now time.Time) (ProfileChanges, error) {
	changes := ProfileChanges{Fields: []string{}, Safety: []string{}}
	next := *c

	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
			return changes, shared.NewDomainError("child", "UpdateProfile", shared.ErrValidation,
				"display name must be 1-100 characters")
		}
		next.DisplayName = name
	}
	if u.AgeYears != nil {
		if *u.AgeYears < MinAge || *u.AgeYears > MaxAge {
			return changes, shared.ErrInvalidAge
		}
		next.AgeYears = *u.AgeYears
	}
	if u.AvatarURL != nil {
		url := strings.TrimSpace(*u.AvatarURL)
		if len(url) > MaxAvatarURLLength {
			return changes, shared.NewDomainError("child", "UpdateProfile", shared.ErrValidation,
				"avatar url is too long")
		}
		next.AvatarURL = url
	}
	if u.CountryCode != nil {
		code, err := normalizeCountryCode(*u.CountryCode)
		if err != nil {
			return changes, err
		}
		next.CountryCode = code
	}

	for _, f := range []struct {
		name    string
		changed bool
	}{
		{FieldDisplayName, next.DisplayName != c.DisplayName},
		{FieldAge, next.AgeYears != c.AgeYears},
		{FieldAvatarURL, next.AvatarURL != c.AvatarURL},
		{FieldCountryCode, next.CountryCode != c.CountryCode},
	} {
		if f.changed {
			changes.Fields = append(changes.Fields, f.name)
		}
	}
	if next.AgeYears != c.AgeYears {
		next.Safety, changes.Safety = safety.Clamp(c.Safety, next.AgeYears)
	}
	if len(changes.Fields) == 0 {
		return changes, nil
	}

	next.UpdatedAt = now
	*c = next
	return changes, nil
}

// normalizeCountryCode принимает пустую строку (сброс) или код ISO 3166-1 alpha-2.
func normalizeCountryCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return "", shared.NewDomainError("child", "UpdateProfile", shared.ErrValidation,
			"country code must be two letters")
	}
	return code, nil
}

// ResetSafety безусловно восстанавливает значения по умолчанию.
func (c *Child) ResetSafety(now time.Time) {
	c.Safety = safety.DefaultsFor(c.AgeYears)
	c.UpdatedAt = now
}

// CompleteInitiation завершает инициацию. Повторный вызов - конфликт.
func (c *Child) CompleteInitiation(alterEgoName string, now time.Time) error {
	if c.InitiationCompleted {
		return shared.ErrInitiationAlreadyDone
	}
	name := strings.TrimSpace(alterEgoName)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return shared.NewDomainError("child", "CompleteInitiation", shared.ErrValidation,
			"alter ego name must be 1-100 characters")
	}

	c.AlterEgoName = name
	c.InitiationCompleted = true
	c.InitiatedAt = &now
	c.UpdatedAt = now
	return nil
}

// SyncRank пересчитывает ранг из истории. Это единственный способ
// изменить Rank. Возвращает предыдущий ранг и признак изменения.
func (c *Child) SyncRank(h rank.History) (previous rank.Rank, changed bool) {
	previous = c.Rank
	derived := rank.Derive(h)
	if derived == previous {
		return previous, false
	}
	c.Rank = derived
	return previous, true
}

// Guardian - опекун (родитель), владелец аккаунтов детей.
// Личность проверяется внешним провайдером; здесь хранится только контакт.
type Guardian struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName,omitempty"`
	Language    shared.Language `json:"language"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
