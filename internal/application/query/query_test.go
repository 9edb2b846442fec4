package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/safety"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
)

var (
	testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	parent  = access.Actor{UserID: "guardian-1", Role: access.RoleParent}
	other   = access.Actor{UserID: "guardian-2", Role: access.RoleParent}
)

type seeded struct {
	store   *memory.Store
	child   *child.Child
	mission *mission.Mission
}

func seed(t *testing.T, balance int) seeded {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	c, err := child.NewChild(child.NewChildParams{
		GuardianID:  parent.UserID,
		DisplayName: "Lucía",
		AgeYears:    5,
		Random:      shared.NewSeededRandom(1),
		Now:         testNow,
	})
	require.NoError(t, err)

	m := &mission.Mission{ID: "m-1", Period: mission.Period{Year: 2026, Month: 3}, Title: "Valor", PointsPerChallenge: 25}
	chs := []*mission.Challenge{
		{ID: "ch-1", Order: 1, Title: "Uno", AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto}, PointReward: 25},
		{ID: "ch-2", Order: 2, Title: "Dos", AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto}, PointReward: 25},
	}
	one := 1
	zero := 0
	rewards := []*reward.Reward{
		{ID: "r-cheap", Code: "CHEAP", Kind: reward.KindDigital, Rarity: reward.RarityCommon, Cost: 50, Redeemable: true},
		{ID: "r-rare", Code: "RARE", Kind: reward.KindPhysical, Rarity: reward.RarityRare, Cost: 500, Redeemable: true, RemainingStock: &one},
		{ID: "r-gone", Code: "GONE", Kind: reward.KindDigital, Rarity: reward.RarityCommon, Cost: 10, Redeemable: true, RemainingStock: &zero},
		{ID: "r-badge", Code: "INICIADO", Kind: reward.KindBadge, Rarity: reward.RarityCommon},
	}

	require.NoError(t, store.Run(ctx, s, func(uow store.UnitOfWork) error {
		if err := uow.Children().Create(ctx, c); err != nil {
			return err
		}
		if balance > 0 {
			if _, err := uow.Ledger().Credit(ctx, c.ID, balance); err != nil {
				return err
			}
		}
		if err := uow.Missions().Publish(ctx, m, chs); err != nil {
			return err
		}
		for _, r := range rewards {
			if err := uow.Rewards().Create(ctx, r); err != nil {
				return err
			}
		}
		for i, ch := range chs {
			sub, err := challenge.NewSubmission(c.ID, ch, mission.ProofPhoto, []string{"x"}, testNow.Add(time.Duration(i)*time.Minute))
			if err != nil {
				return err
			}
			if err := uow.Submissions().Create(ctx, sub); err != nil {
				return err
			}
			if i == 0 {
				if err := sub.Review(challenge.DecisionApprove, "admin", "", ch.PointReward, testNow); err != nil {
					return err
				}
				if err := uow.Submissions().SaveReview(ctx, sub); err != nil {
					return err
				}
			}
		}
		return nil
	}))
	return seeded{store: s, child: c, mission: m}
}

func TestListSubmissions_FilterAndOrder(t *testing.T) {
	s := seed(t, 0)
	h := NewListSubmissionsHandler(s.store)
	ctx := context.Background()

	all, err := h.Handle(ctx, ListSubmissionsQuery{Actor: parent, ChildID: s.child.ID})
	require.NoError(t, err)
	require.Equal(t, 2, all.Total)
	assert.Equal(t, "ch-2", all.Submissions[0].ChallengeID)

	pending, err := h.Handle(ctx, ListSubmissionsQuery{Actor: parent, ChildID: s.child.ID, Status: "pending"})
	require.NoError(t, err)
	require.Equal(t, 1, pending.Total)
	assert.Equal(t, challenge.StatusPending, pending.Submissions[0].Status)

	_, err = h.Handle(ctx, ListSubmissionsQuery{Actor: parent, ChildID: s.child.ID, Status: "DONE"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, ListSubmissionsQuery{Actor: other, ChildID: s.child.ID})
	assert.True(t, shared.IsNotFound(err))
}

func TestRewards_ListAndAvailable(t *testing.T) {
	s := seed(t, 120)
	h := NewRewardsHandler(s.store, nil)
	ctx := context.Background()

	catalog, err := h.List(ctx, reward.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, catalog.Total)

	physical, err := reward.ParseCatalogFilter("physical", "", "")
	require.NoError(t, err)
	only, err := h.List(ctx, physical)
	require.NoError(t, err)
	require.Equal(t, 1, only.Total)
	assert.Equal(t, "RARE", only.Rewards[0].Code)

	avail, err := h.Available(ctx, parent, s.child.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, avail.Balance)
	require.Len(t, avail.Affordable, 1)
	assert.Equal(t, "CHEAP", avail.Affordable[0].Code)
	require.Len(t, avail.Upcoming, 1)
	assert.Equal(t, "RARE", avail.Upcoming[0].Code)
	assert.Equal(t, 2, avail.Total)

	_, err = h.Get(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestProgress_Summary(t *testing.T) {
	s := seed(t, 30)
	ctx := context.Background()

	out, err := NewProgressHandler(s.store).Handle(ctx, parent, s.child.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, out.PointsBalance)
	assert.Equal(t, rank.Iniciado, out.Rank)
	require.NotNil(t, out.NextRank)
	assert.Equal(t, rank.Valiente, out.NextRank.Rank)
	assert.Equal(t, rank.History{ApprovedChallenges: 1, CumulativePoints: 25}, out.History)
	assert.NotNil(t, out.Missions)
	assert.NotNil(t, out.Ledger)
}

func TestSafetySettings_Describe(t *testing.T) {
	s := seed(t, 0)
	out, err := NewSafetySettingsHandler(s.store).Handle(context.Background(), parent, s.child.ID, shared.LanguageEN)
	require.NoError(t, err)

	assert.Equal(t, 5, out.ChildAge)
	assert.Equal(t, safety.DefaultsFor(5), out.AgeDefaults)
	assert.Equal(t, out.AgeDefaults, out.Current)
	assert.Contains(t, out.ModeDescription, "Super Safe")
}

func TestMissions_CurrentAndByPeriod(t *testing.T) {
	s := seed(t, 0)
	h := NewMissionsHandler(NewStoreMissionCatalog(s.store), shared.FixedClock{T: testNow}, time.UTC)
	ctx := context.Background()

	cur, err := h.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", cur.ID)
	require.Len(t, cur.Challenges, 2)
	assert.Equal(t, "ch-1", cur.Challenges[0].ID)

	_, err = h.ByPeriod(ctx, mission.Period{Year: 2026, Month: 4})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.ByPeriod(ctx, mission.Period{Year: 2026, Month: 13})
	assert.True(t, shared.IsValidation(err))
}

func TestChildren_ListOnlyOwn(t *testing.T) {
	s := seed(t, 0)
	h := NewChildrenHandler(s.store)
	ctx := context.Background()

	mine, err := h.List(ctx, parent)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := h.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = h.Get(ctx, other, s.child.ID)
	assert.True(t, shared.IsNotFound(err))
}
