// Package memory provides an in-process implementation of store.UnitOfWorkFactory.
// A unit of work holds the store mutex from Begin until Commit or Rollback,
// so every unit of work is serializable. Rollback restores a snapshot taken
// at Begin. Used in development without a database and as the test fake.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ErrUnitClosed is returned when a finished unit of work is used again.
var ErrUnitClosed = errors.New("memory: unit of work already closed")

type progressKey struct {
	childID   string
	missionID string
}

// state is the whole dataset. Entities are stored as private copies.
type state struct {
	children    map[string]*child.Child
	guardians   map[string]*child.Guardian
	entries     []*ledger.Entry
	missions    map[string]*mission.Mission
	challenges  map[string]*mission.Challenge
	progress    map[progressKey]*mission.Progress
	submissions map[string]*challenge.Submission
	rewards     map[string]*reward.Reward
	redemptions map[string]*reward.Redemption
	inbox       map[string]*notification.Notification
}

func newState() *state {
	return &state{
		children:    make(map[string]*child.Child),
		guardians:   make(map[string]*child.Guardian),
		missions:    make(map[string]*mission.Mission),
		challenges:  make(map[string]*mission.Challenge),
		progress:    make(map[progressKey]*mission.Progress),
		submissions: make(map[string]*challenge.Submission),
		rewards:     make(map[string]*reward.Reward),
		redemptions: make(map[string]*reward.Redemption),
		inbox:       make(map[string]*notification.Notification),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.children {
		cp.children[k] = copyChild(v)
	}
	for k, v := range s.guardians {
		g := *v
		cp.guardians[k] = &g
	}
	cp.entries = make([]*ledger.Entry, len(s.entries))
	for i, e := range s.entries {
		ec := *e
		cp.entries[i] = &ec
	}
	for k, v := range s.missions {
		cp.missions[k] = copyMission(v)
	}
	for k, v := range s.challenges {
		cp.challenges[k] = copyChallenge(v)
	}
	for k, v := range s.progress {
		cp.progress[k] = copyProgress(v)
	}
	for k, v := range s.submissions {
		cp.submissions[k] = copySubmission(v)
	}
	for k, v := range s.rewards {
		cp.rewards[k] = copyReward(v)
	}
	for k, v := range s.redemptions {
		cp.redemptions[k] = copyRedemption(v)
	}
	for k, v := range s.inbox {
		cp.inbox[k] = copyNotification(v)
	}
	return cp
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is an in-memory UnitOfWorkFactory.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Begin locks the store for the lifetime of the unit of work.
func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &unitOfWork{store: s, snapshot: s.st.clone()}, nil
}

type unitOfWork struct {
	store    *Store
	snapshot *state
	closed   bool
}

func (u *unitOfWork) state() *state { return u.store.st }

func (u *unitOfWork) Children() child.Repository               { return childRepo{u} }
func (u *unitOfWork) Guardians() child.GuardianRepository      { return guardianRepo{u} }
func (u *unitOfWork) Ledger() ledger.Repository                { return ledgerRepo{u} }
func (u *unitOfWork) Missions() mission.Repository             { return missionRepo{u} }
func (u *unitOfWork) Progress() mission.ProgressRepository     { return progressRepo{u} }
func (u *unitOfWork) Submissions() challenge.Repository        { return submissionRepo{u} }
func (u *unitOfWork) Rewards() reward.Repository               { return rewardRepo{u} }
func (u *unitOfWork) Redemptions() reward.RedemptionRepository { return redemptionRepo{u} }
func (u *unitOfWork) Notifications() notification.Repository   { return inboxRepo{u} }

// Commit keeps the changes and releases the store.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return ErrUnitClosed
	}
	u.closed = true
	u.snapshot = nil
	u.store.mu.Unlock()
	return nil
}

// Rollback restores the snapshot and releases the store.
// Calling it after Commit is a no-op.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.store.st = u.snapshot
	u.snapshot = nil
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) check() error {
	if u.closed {
		return ErrUnitClosed
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COPY HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func copyChild(c *child.Child) *child.Child {
	cp := *c
	if c.InitiatedAt != nil {
		t := *c.InitiatedAt
		cp.InitiatedAt = &t
	}
	return &cp
}

func copyMission(m *mission.Mission) *mission.Mission {
	cp := *m
	cp.ChallengeIDs = append([]string(nil), m.ChallengeIDs...)
	return &cp
}

func copyChallenge(c *mission.Challenge) *mission.Challenge {
	cp := *c
	cp.AllowedProofKinds = append([]mission.ProofKind(nil), c.AllowedProofKinds...)
	return &cp
}

func copyProgress(p *mission.Progress) *mission.Progress {
	cp := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copySubmission(s *challenge.Submission) *challenge.Submission {
	cp := *s
	cp.ProofRefs = append([]string(nil), s.ProofRefs...)
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

func copyReward(r *reward.Reward) *reward.Reward {
	cp := *r
	if r.RemainingStock != nil {
		n := *r.RemainingStock
		cp.RemainingStock = &n
	}
	return &cp
}

func copyRedemption(r *reward.Redemption) *reward.Redemption {
	cp := *r
	if r.Shipping != nil {
		s := *r.Shipping
		cp.Shipping = &s
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func copyNotification(n *notification.Notification) *notification.Notification {
	cp := *n
	if n.Payload != nil {
		cp.Payload = make(map[string]string, len(n.Payload))
		for k, v := range n.Payload {
			cp.Payload[k] = v
		}
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}
