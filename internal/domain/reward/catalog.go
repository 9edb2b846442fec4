package reward

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG FILTER
// ══════════════════════════════════════════════════════════════════════════════

// CatalogFilter - явный фильтр каталога. Нулевые значения не фильтруют.
type CatalogFilter struct {
	Kind        Kind
	Rarity      Rarity
	Redeemable  *bool
	OnlyInStock bool
}

// ParseCatalogFilter разбирает query-параметры kind, rarity, redeemable.
func ParseCatalogFilter(kind, rarity, redeemable string) (CatalogFilter, error) {
	var f CatalogFilter

	if kind = strings.ToUpper(strings.TrimSpace(kind)); kind != "" {
		f.Kind = Kind(kind)
		if !f.Kind.IsValid() {
			return CatalogFilter{}, shared.NewDomainError("reward", "ParseFilter", shared.ErrValidation,
				"kind must be BADGE, DIGITAL, PHYSICAL or EXPERIENCE")
		}
	}
	if rarity = strings.ToUpper(strings.TrimSpace(rarity)); rarity != "" {
		f.Rarity = Rarity(rarity)
		if !f.Rarity.IsValid() {
			return CatalogFilter{}, shared.NewDomainError("reward", "ParseFilter", shared.ErrValidation,
				"rarity must be COMMON, RARE, EPIC or LEGENDARY")
		}
	}
	if redeemable = strings.TrimSpace(redeemable); redeemable != "" {
		b, err := strconv.ParseBool(redeemable)
		if err != nil {
			return CatalogFilter{}, shared.NewDomainError("reward", "ParseFilter", shared.ErrValidation,
				"redeemable must be a boolean")
		}
		f.Redeemable = &b
	}
	return f, nil
}

// Matches проверяет награду по фильтру.
func (f CatalogFilter) Matches(r *Reward) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Rarity != "" && r.Rarity != f.Rarity {
		return false
	}
	if f.Redeemable != nil && r.Redeemable != *f.Redeemable {
		return false
	}
	if f.OnlyInStock && !r.InStock() {
		return false
	}
	return true
}

// SortCatalog сортирует по редкости, затем по стоимости, затем по коду.
func SortCatalog(rewards []*Reward) {
	sort.SliceStable(rewards, func(i, j int) bool {
		a, b := rewards[i], rewards[j]
		if a.Rarity.Ordinal() != b.Rarity.Ordinal() {
			return a.Rarity.Ordinal() < b.Rarity.Ordinal()
		}
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return a.Code < b.Code
	})
}

// Availability - доступные ребёнку награды.
type Availability struct {
	Balance    int       `json:"childLuzPoints"`
	Affordable []*Reward `json:"affordable"`
	Upcoming   []*Reward `json:"upcoming"`
	Total      int       `json:"totalAvailable"`
}

// SplitAvailable делит обмениваемые награды в наличии на доступные
// по балансу и будущие. Порядок: по стоимости.
func SplitAvailable(rewards []*Reward, balance int) Availability {
	out := Availability{
		Balance:    balance,
		Affordable: []*Reward{},
		Upcoming:   []*Reward{},
	}
	for _, r := range rewards {
		if !r.Redeemable || !r.InStock() {
			continue
		}
		if r.Cost <= balance {
			out.Affordable = append(out.Affordable, r)
		} else {
			out.Upcoming = append(out.Upcoming, r)
		}
	}
	byCost := func(list []*Reward) {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Cost != list[j].Cost {
				return list[i].Cost < list[j].Cost
			}
			return list[i].Rarity.Ordinal() < list[j].Rarity.Ordinal()
		})
	}
	byCost(out.Affordable)
	byCost(out.Upcoming)
	out.Total = len(out.Affordable) + len(out.Upcoming)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - каталог наград.
type Repository interface {
	// Create добавляет награду. ErrAlreadyExists при повторе кода.
	Create(ctx context.Context, r *Reward) error

	// GetByID возвращает награду или ErrRewardNotFound.
	GetByID(ctx context.Context, id string) (*Reward, error)

	// GetByIDForUpdate возвращает награду и блокирует строку
	// до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*Reward, error)

	// GetByCode возвращает награду по уникальному коду.
	GetByCode(ctx context.Context, code string) (*Reward, error)

	// List возвращает каталог по фильтру.
	List(ctx context.Context, f CatalogFilter) ([]*Reward, error)

	// DecrementStock уменьшает конечный запас на единицу одной условной
	// операцией. Для неограниченных наград ничего не делает.
	// Возвращает ErrRewardOutOfStock, если запас исчерпан.
	DecrementStock(ctx context.Context, id string) error
}

// RedemptionRepository - журнал выдачи наград.
type RedemptionRepository interface {
	// Create сохраняет запись.
	Create(ctx context.Context, r *Redemption) error

	// ListByChild возвращает награды ребёнка, новые первыми.
	ListByChild(ctx context.Context, childID string) ([]*Redemption, error)

	// HasReward проверяет, получал ли ребёнок награду с данным кодом.
	HasReward(ctx context.Context, childID, rewardCode string) (bool, error)
}
