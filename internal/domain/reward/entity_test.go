package reward

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

func stock(n int) *int { return &n }

func TestEvaluateRedemption_Order(t *testing.T) {
	tests := []struct {
		name    string
		reward  Reward
		balance int
		want    error
	}{
		{"not redeemable wins over stock", Reward{Redeemable: false, RemainingStock: stock(0), Cost: 10}, 0, shared.ErrNotRedeemable},
		{"out of stock wins over funds", Reward{Redeemable: true, RemainingStock: stock(0), Cost: 10}, 0, shared.ErrOutOfStock},
		{"insufficient funds", Reward{Redeemable: true, Cost: 500}, 450, shared.ErrInsufficientFunds},
		{"exact balance", Reward{Redeemable: true, Cost: 100}, 100, nil},
		{"unlimited stock", Reward{Redeemable: true, Cost: 0}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reward.EvaluateRedemption(tt.balance)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEvaluateRedemption_Shortage(t *testing.T) {
	r := Reward{Redeemable: true, Cost: 500}

	err := r.EvaluateRedemption(450)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, 500, de.Details["required"])
	assert.Equal(t, 450, de.Details["available"])
	assert.Equal(t, 50, de.Details["shortage"])
}

func TestTakeOne(t *testing.T) {
	r := Reward{RemainingStock: stock(1)}
	require.NoError(t, r.TakeOne())
	assert.Equal(t, 0, *r.RemainingStock)
	assert.True(t, errors.Is(r.TakeOne(), shared.ErrOutOfStock))

	unlimited := Reward{}
	require.NoError(t, unlimited.TakeOne())
	assert.Nil(t, unlimited.RemainingStock)
}

func TestNewRedemption_Shipping(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	physical := &Reward{ID: "r1", Code: "PULSERA_LUZ", Kind: KindPhysical, Cost: 250}

	_, err := NewRedemption("c1", physical, nil, now)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = NewRedemption("c1", physical, &ShippingInfo{RecipientName: "Ana"}, now)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"addressLine", "city", "country"}, de.Details["missing"])

	red, err := NewRedemption("c1", physical, &ShippingInfo{
		RecipientName: "Ana", AddressLine: "Calle 1", City: "Lima", Country: "PE",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 250, red.CostPaid)
	assert.Equal(t, SourceRedeemed, red.Source)
	require.NotNil(t, red.Shipping)

	digital := &Reward{ID: "r2", Code: "AVATAR_EXCLUSIVO", Kind: KindDigital, Cost: 50}
	red, err = NewRedemption("c1", digital, &ShippingInfo{RecipientName: "ignored"}, now)
	require.NoError(t, err)
	assert.Nil(t, red.Shipping)
}

func TestNewAward(t *testing.T) {
	r := &Reward{ID: "b1", Code: "INICIADO", Kind: KindBadge}
	a := NewAward("c1", r, map[string]string{"reason": "initiation"}, time.Now())

	assert.Equal(t, SourceAwarded, a.Source)
	assert.Equal(t, 0, a.CostPaid)
	assert.Equal(t, "initiation", a.Metadata["reason"])
}

func TestCatalogFilter(t *testing.T) {
	f, err := ParseCatalogFilter("physical", "", "true")
	require.NoError(t, err)

	assert.True(t, f.Matches(&Reward{Kind: KindPhysical, Redeemable: true}))
	assert.False(t, f.Matches(&Reward{Kind: KindPhysical, Redeemable: false}))
	assert.False(t, f.Matches(&Reward{Kind: KindBadge, Redeemable: true}))

	_, err = ParseCatalogFilter("", "MYTHIC", "")
	assert.True(t, shared.IsValidation(err))
	_, err = ParseCatalogFilter("", "", "maybe")
	assert.True(t, shared.IsValidation(err))
}

func TestSplitAvailable(t *testing.T) {
	rewards := []*Reward{
		{Code: "DIPLOMA", Cost: 500, Redeemable: true, RemainingStock: stock(200)},
		{Code: "AVATAR", Cost: 50, Redeemable: true},
		{Code: "CARTA", Cost: 100, Redeemable: true, RemainingStock: stock(0)},
		{Code: "BADGE", Cost: 0, Redeemable: false},
		{Code: "PULSERA", Cost: 250, Redeemable: true},
	}

	got := SplitAvailable(rewards, 250)

	require.Len(t, got.Affordable, 2)
	assert.Equal(t, "AVATAR", got.Affordable[0].Code)
	assert.Equal(t, "PULSERA", got.Affordable[1].Code)
	require.Len(t, got.Upcoming, 1)
	assert.Equal(t, "DIPLOMA", got.Upcoming[0].Code)
	assert.Equal(t, 3, got.Total)
}

func TestSortCatalog(t *testing.T) {
	list := []*Reward{
		{Code: "B", Rarity: RarityEpic, Cost: 10},
		{Code: "A", Rarity: RarityCommon, Cost: 100},
		{Code: "C", Rarity: RarityCommon, Cost: 50},
	}
	SortCatalog(list)
	assert.Equal(t, "C", list[0].Code)
	assert.Equal(t, "A", list[1].Code)
	assert.Equal(t, "B", list[2].Code)
}
