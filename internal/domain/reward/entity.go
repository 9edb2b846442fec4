// Package reward содержит каталог наград и правила обмена очков на награды.
package reward

import (
	"strings"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND & RARITY
// ══════════════════════════════════════════════════════════════════════════════

// Kind - тип награды.
type Kind string

const (
	KindBadge      Kind = "BADGE"
	KindDigital    Kind = "DIGITAL"
	KindPhysical   Kind = "PHYSICAL"
	KindExperience Kind = "EXPERIENCE"
)

// IsValid проверяет тип.
func (k Kind) IsValid() bool {
	switch k {
	case KindBadge, KindDigital, KindPhysical, KindExperience:
		return true
	default:
		return false
	}
}

// RequiresShipping возвращает true для физических наград.
func (k Kind) RequiresShipping() bool {
	return k == KindPhysical
}

// Rarity - редкость награды.
type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

// IsValid проверяет редкость.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Ordinal - порядок сортировки от обычной к легендарной.
func (r Rarity) Ordinal() int {
	switch r {
	case RarityRare:
		return 1
	case RarityEpic:
		return 2
	case RarityLegendary:
		return 3
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD
// ══════════════════════════════════════════════════════════════════════════════

// Reward - позиция каталога.
type Reward struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Kind           Kind      `json:"kind"`
	NameES         string    `json:"nameEs"`
	NameEN         string    `json:"nameEn"`
	DescriptionES  string    `json:"descriptionEs,omitempty"`
	DescriptionEN  string    `json:"descriptionEn,omitempty"`
	Cost           int       `json:"cost"`
	IconURL        string    `json:"iconUrl,omitempty"`
	Rarity         Rarity    `json:"rarity"`
	Redeemable     bool      `json:"redeemable"`
	RemainingStock *int      `json:"remainingStock"` // nil = без ограничений
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate проверяет инварианты каталога.
func (r *Reward) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return shared.NewDomainError("reward", "Validate", shared.ErrEmptyValue, "code is required")
	}
	if !r.Kind.IsValid() {
		return shared.NewDomainError("reward", "Validate", shared.ErrValidation, "unknown reward kind")
	}
	if !r.Rarity.IsValid() {
		return shared.NewDomainError("reward", "Validate", shared.ErrValidation, "unknown rarity")
	}
	if r.Cost < 0 {
		return shared.NewDomainError("reward", "Validate", shared.ErrNegativeValue, "cost cannot be negative")
	}
	if r.RemainingStock != nil && *r.RemainingStock < 0 {
		return shared.NewDomainError("reward", "Validate", shared.ErrNegativeValue, "stock cannot be negative")
	}
	return nil
}

// Name возвращает название на нужном языке.
func (r *Reward) Name(lang shared.Language) string {
	if lang == shared.LanguageEN && r.NameEN != "" {
		return r.NameEN
	}
	return r.NameES
}

// Unlimited возвращает true, если запас не ограничен.
func (r *Reward) Unlimited() bool {
	return r.RemainingStock == nil
}

// InStock возвращает true, если награду ещё можно выдать.
func (r *Reward) InStock() bool {
	return r.RemainingStock == nil || *r.RemainingStock > 0
}

// TakeOne уменьшает конечный запас на единицу.
func (r *Reward) TakeOne() error {
	if !r.InStock() {
		return shared.ErrRewardOutOfStock
	}
	if r.RemainingStock != nil {
		n := *r.RemainingStock - 1
		r.RemainingStock = &n
	}
	return nil
}

// EvaluateRedemption проверяет обмен в фиксированном порядке:
// NotRedeemable, OutOfStock, InsufficientFunds.
// Должна вызываться над согласованным снимком (под блокировкой строк).
func (r *Reward) EvaluateRedemption(balance int) error {
	if !r.Redeemable {
		return shared.ErrRewardNotRedeemable
	}
	if !r.InStock() {
		return shared.ErrRewardOutOfStock
	}
	if balance < r.Cost {
		return shared.NewInsufficientFunds("reward", "Redeem", r.Cost, balance)
	}
	return nil
}

// EvaluateAward проверяет ручную выдачу: стоимость не учитывается,
// но запас соблюдается.
func (r *Reward) EvaluateAward() error {
	if !r.InStock() {
		return shared.ErrRewardOutOfStock
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTION
// ══════════════════════════════════════════════════════════════════════════════

// Source - как ребёнок получил награду.
type Source string

const (
	SourceRedeemed Source = "REDEEMED"
	SourceAwarded  Source = "AWARDED"
)

// ShippingInfo - данные доставки физической награды.
type ShippingInfo struct {
	RecipientName string `json:"recipientName"`
	AddressLine   string `json:"addressLine"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
}

// Validate проверяет обязательные поля доставки.
func (s *ShippingInfo) Validate() error {
	if s == nil {
		return shared.ErrShippingInfoRequired
	}
	var missing []string
	if strings.TrimSpace(s.RecipientName) == "" {
		missing = append(missing, "recipientName")
	}
	if strings.TrimSpace(s.AddressLine) == "" {
		missing = append(missing, "addressLine")
	}
	if strings.TrimSpace(s.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(s.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return shared.ErrShippingInfoRequired.WithDetail("missing", missing)
	}
	return nil
}

// Redemption - неизменяемая запись о выдаче награды.
type Redemption struct {
	ID         string            `json:"id"`
	ChildID    string            `json:"childId"`
	RewardID   string            `json:"rewardId"`
	RewardCode string            `json:"rewardCode"`
	Source     Source            `json:"source"`
	CostPaid   int               `json:"costPaid"`
	RedeemedAt time.Time         `json:"redeemedAt"`
	Shipping   *ShippingInfo     `json:"shippingInfo,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NewRedemption создаёт запись обмена. Данные доставки сохраняются
// только для физических наград.
func NewRedemption(childID string, r *Reward, shipping *ShippingInfo, now time.Time) (*Redemption, error) {
	red := &Redemption{
		ID:         shared.NewID(),
		ChildID:    childID,
		RewardID:   r.ID,
		RewardCode: r.Code,
		Source:     SourceRedeemed,
		CostPaid:   r.Cost,
		RedeemedAt: now,
	}
	if r.Kind.RequiresShipping() {
		if err := shipping.Validate(); err != nil {
			return nil, err
		}
		s := *shipping
		red.Shipping = &s
	}
	return red, nil
}

// NewAward создаёт запись ручной выдачи без списания очков.
func NewAward(childID string, r *Reward, metadata map[string]string, now time.Time) *Redemption {
	return &Redemption{
		ID:         shared.NewID(),
		ChildID:    childID,
		RewardID:   r.ID,
		RewardCode: r.Code,
		Source:     SourceAwarded,
		CostPaid:   0,
		RedeemedAt: now,
		Metadata:   metadata,
	}
}
