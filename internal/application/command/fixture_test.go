package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

var (
	parent = access.Actor{UserID: "guardian-1", Role: access.RoleParent}
	other  = access.Actor{UserID: "guardian-2", Role: access.RoleParent}
	admin  = access.Actor{UserID: "admin-1", Role: access.RoleAdmin}
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	clock   shared.FixedClock
	pub     *recordingPublisher
	ledger  *progression.AccountLedger
	tracker *progression.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := shared.FixedClock{T: testNow}
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   memory.NewStore(),
		clock:   clock,
		pub:     &recordingPublisher{},
		ledger:  progression.NewAccountLedger(clock),
		tracker: progression.NewTracker(clock),
	}
}

func (f *fixture) run(fn func(uow store.UnitOfWork) error) {
	f.t.Helper()
	require.NoError(f.t, store.Run(f.ctx, f.store, fn))
}

// addChild stores a child of guardian-1 with the given balance.
func (f *fixture) addChild(age, balance int) *child.Child {
	f.t.Helper()
	c, err := child.NewChild(child.NewChildParams{
		GuardianID:  parent.UserID,
		DisplayName: "Lucía",
		AgeYears:    age,
		Archangels:  []string{"miguel"},
		Random:      shared.NewSeededRandom(int64(len(f.childIDs()) + 1)),
		Now:         testNow,
	})
	require.NoError(f.t, err)
	f.run(func(uow store.UnitOfWork) error {
		if err := uow.Children().Create(f.ctx, c); err != nil {
			return err
		}
		if balance > 0 {
			_, err := f.ledger.Credit(f.ctx, uow, c.ID, balance, ledger.ReasonWelcomeBonus, "seed")
			return err
		}
		return nil
	})
	c.PointsBalance = balance
	return c
}

func (f *fixture) childIDs() []string {
	var ids []string
	_ = store.Read(f.ctx, f.store, func(uow store.UnitOfWork) error {
		var err error
		ids, err = uow.Children().ListIDs(f.ctx, child.DefaultListOptions())
		return err
	})
	return ids
}

// addMission publishes a mission of n challenges worth points each.
func (f *fixture) addMission(n, points int) (*mission.Mission, []*mission.Challenge) {
	f.t.Helper()
	m := &mission.Mission{
		ID:                 shared.NewID(),
		Period:             mission.Period{Year: 2026, Month: 3},
		Title:              "Misión del Valor",
		PointsPerChallenge: points,
		PublishedAt:        testNow,
	}
	challenges := make([]*mission.Challenge, 0, n)
	for i := 0; i < n; i++ {
		challenges = append(challenges, &mission.Challenge{
			ID:                shared.NewID(),
			Order:             i + 1,
			Title:             "Reto",
			AllowedProofKinds: []mission.ProofKind{mission.ProofPhoto, mission.ProofVideo},
			PointReward:       points,
		})
	}
	f.run(func(uow store.UnitOfWork) error {
		return uow.Missions().Publish(f.ctx, m, challenges)
	})
	return m, challenges
}

func (f *fixture) addReward(code string, kind reward.Kind, cost int, stockN *int, redeemable bool) *reward.Reward {
	f.t.Helper()
	r := &reward.Reward{
		ID:             shared.NewID(),
		Code:           code,
		Kind:           kind,
		NameES:         code,
		Cost:           cost,
		Rarity:         reward.RarityCommon,
		Redeemable:     redeemable,
		RemainingStock: stockN,
		CreatedAt:      testNow,
	}
	f.run(func(uow store.UnitOfWork) error {
		return uow.Rewards().Create(f.ctx, r)
	})
	return r
}

func (f *fixture) child(id string) *child.Child {
	f.t.Helper()
	var c *child.Child
	require.NoError(f.t, store.Read(f.ctx, f.store, func(uow store.UnitOfWork) error {
		var err error
		c, err = uow.Children().GetByID(f.ctx, id)
		return err
	}))
	return c
}

func (f *fixture) reward(id string) *reward.Reward {
	f.t.Helper()
	var r *reward.Reward
	require.NoError(f.t, store.Read(f.ctx, f.store, func(uow store.UnitOfWork) error {
		var err error
		r, err = uow.Rewards().GetByID(f.ctx, id)
		return err
	}))
	return r
}

func (f *fixture) ledgerEntries(childID string) []*ledger.Entry {
	f.t.Helper()
	var out []*ledger.Entry
	require.NoError(f.t, store.Read(f.ctx, f.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Ledger().History(f.ctx, childID, 100)
		return err
	}))
	return out
}

func (f *fixture) submitHandler() *SubmitChallengeHandler {
	return NewSubmitChallengeHandler(f.store, f.pub, f.clock, nil)
}

func (f *fixture) reviewHandler(guardianAllowed bool) *ReviewSubmissionHandler {
	return NewReviewSubmissionHandler(f.store, f.ledger, f.tracker, f.pub, f.clock, nil, guardianAllowed)
}

func (f *fixture) redeemHandler() *RedeemRewardHandler {
	return NewRedeemRewardHandler(f.store, f.ledger, f.pub, f.clock, nil)
}

// submitAndApprove runs the full workflow for one challenge.
func (f *fixture) submitAndApprove(childID, challengeID string) *ReviewSubmissionResult {
	f.t.Helper()
	sub, err := f.submitHandler().Handle(f.ctx, SubmitChallengeCommand{
		Actor:       parent,
		ChildID:     childID,
		ChallengeID: challengeID,
		ProofKind:   "photo",
		ProofRefs:   []string{"s3://proofs/" + challengeID + ".jpg"},
	})
	require.NoError(f.t, err)
	res, err := f.reviewHandler(false).Handle(f.ctx, ReviewSubmissionCommand{
		Actor:        admin,
		SubmissionID: sub.Submission.ID,
		Decision:     "APPROVED",
	})
	require.NoError(f.t, err)
	return res
}

func stockOf(n int) *int { return &n }
