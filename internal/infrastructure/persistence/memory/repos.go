package memory

import (
	"context"
	"sort"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/ledger"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILDREN
// ══════════════════════════════════════════════════════════════════════════════

type childRepo struct{ u *unitOfWork }

func (r childRepo) Create(ctx context.Context, c *child.Child) error {
	if err := r.u.check(); err != nil {
		return err
	}
	st := r.u.state()
	if _, ok := st.children[c.ID]; ok {
		return shared.NewDomainError("child", "Create", shared.ErrAlreadyExists, "child already exists")
	}
	for _, other := range st.children {
		if other.SecretCode == c.SecretCode {
			return shared.ErrSecretCodeAlreadyExists
		}
	}
	st.children[c.ID] = copyChild(c)
	return nil
}

func (r childRepo) GetByID(ctx context.Context, id string) (*child.Child, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	c, ok := r.u.state().children[id]
	if !ok {
		return nil, shared.ErrChildNotFound
	}
	return copyChild(c), nil
}

// GetByIDForUpdate needs no extra locking: the unit of work owns the store.
func (r childRepo) GetByIDForUpdate(ctx context.Context, id string) (*child.Child, error) {
	return r.GetByID(ctx, id)
}

func (r childRepo) GetBySecretCode(ctx context.Context, code string) (*child.Child, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	code = child.NormalizeSecretCode(code)
	for _, c := range r.u.state().children {
		if c.SecretCode == code {
			return copyChild(c), nil
		}
	}
	return nil, shared.ErrSecretCodeNotFound
}

func (r childRepo) ListByGuardian(ctx context.Context, guardianID string) ([]*child.Child, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*child.Child, 0)
	for _, c := range r.u.state().children {
		if c.GuardianID == guardianID {
			out = append(out, copyChild(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r childRepo) ListIDs(ctx context.Context, opts child.ListOptions) ([]string, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.u.state().children))
	for id := range r.u.state().children {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if opts.Offset >= len(ids) {
		return []string{}, nil
	}
	ids = ids[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}
	return ids, nil
}

func (r childRepo) UpdateProfile(ctx context.Context, c *child.Child) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cur, ok := r.u.state().children[c.ID]
	if !ok {
		return shared.ErrChildNotFound
	}
	next := copyChild(c)
	next.PointsBalance = cur.PointsBalance
	next.Rank = cur.Rank
	r.u.state().children[c.ID] = next
	return nil
}

func (r childRepo) UpdateRank(ctx context.Context, id string, rk rank.Rank) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cur, ok := r.u.state().children[id]
	if !ok {
		return shared.ErrChildNotFound
	}
	cur.Rank = rk
	return nil
}

func (r childRepo) Delete(ctx context.Context, id string) error {
	if err := r.u.check(); err != nil {
		return err
	}
	st := r.u.state()
	if _, ok := st.children[id]; !ok {
		return shared.ErrChildNotFound
	}
	delete(st.children, id)

	for k, s := range st.submissions {
		if s.ChildID == id {
			delete(st.submissions, k)
		}
	}
	for k, red := range st.redemptions {
		if red.ChildID == id {
			delete(st.redemptions, k)
		}
	}
	for k := range st.progress {
		if k.childID == id {
			delete(st.progress, k)
		}
	}
	kept := st.entries[:0]
	for _, e := range st.entries {
		if e.ChildID != id {
			kept = append(kept, e)
		}
	}
	st.entries = kept
	for _, n := range st.inbox {
		if n.ChildID == id {
			n.ChildID = ""
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GUARDIANS
// ══════════════════════════════════════════════════════════════════════════════

type guardianRepo struct{ u *unitOfWork }

func (r guardianRepo) Upsert(ctx context.Context, g *child.Guardian) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cp := *g
	r.u.state().guardians[g.ID] = &cp
	return nil
}

func (r guardianRepo) GetByID(ctx context.Context, id string) (*child.Guardian, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	g, ok := r.u.state().guardians[id]
	if !ok {
		return nil, shared.ErrGuardianNotFound
	}
	cp := *g
	return &cp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

type ledgerRepo struct{ u *unitOfWork }

func (r ledgerRepo) Credit(ctx context.Context, childID string, amount int) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}
	c, ok := r.u.state().children[childID]
	if !ok {
		return 0, shared.ErrChildNotFound
	}
	c.PointsBalance += amount
	return c.PointsBalance, nil
}

func (r ledgerRepo) Debit(ctx context.Context, childID string, amount int) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return 0, err
	}
	c, ok := r.u.state().children[childID]
	if !ok {
		return 0, shared.ErrChildNotFound
	}
	if c.PointsBalance < amount {
		return 0, shared.NewInsufficientFunds("ledger", "Debit", amount, c.PointsBalance)
	}
	c.PointsBalance -= amount
	return c.PointsBalance, nil
}

func (r ledgerRepo) Balance(ctx context.Context, childID string) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	c, ok := r.u.state().children[childID]
	if !ok {
		return 0, shared.ErrChildNotFound
	}
	return c.PointsBalance, nil
}

func (r ledgerRepo) Append(ctx context.Context, e *ledger.Entry) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cp := *e
	r.u.state().entries = append(r.u.state().entries, &cp)
	return nil
}

func (r ledgerRepo) History(ctx context.Context, childID string, limit int) ([]*ledger.Entry, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*ledger.Entry, 0)
	entries := r.u.state().entries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ChildID != childID {
			continue
		}
		cp := *entries[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSIONS
// ══════════════════════════════════════════════════════════════════════════════

type missionRepo struct{ u *unitOfWork }

func (r missionRepo) GetByID(ctx context.Context, id string) (*mission.Mission, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	m, ok := r.u.state().missions[id]
	if !ok {
		return nil, shared.ErrMissionNotFound
	}
	return copyMission(m), nil
}

func (r missionRepo) GetByPeriod(ctx context.Context, p mission.Period) (*mission.Mission, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	for _, m := range r.u.state().missions {
		if m.Period == p {
			return copyMission(m), nil
		}
	}
	return nil, shared.ErrMissionNotFound
}

func (r missionRepo) GetChallenge(ctx context.Context, id string) (*mission.Challenge, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	c, ok := r.u.state().challenges[id]
	if !ok {
		return nil, shared.ErrChallengeNotFound
	}
	return copyChallenge(c), nil
}

func (r missionRepo) ListChallenges(ctx context.Context, missionID string) ([]*mission.Challenge, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*mission.Challenge, 0)
	for _, c := range r.u.state().challenges {
		if c.MissionID == missionID {
			out = append(out, copyChallenge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r missionRepo) Publish(ctx context.Context, m *mission.Mission, challenges []*mission.Challenge) error {
	if err := r.u.check(); err != nil {
		return err
	}
	st := r.u.state()
	for _, existing := range st.missions {
		if existing.Period == m.Period || existing.ID == m.ID {
			return shared.NewDomainError("mission", "Publish", shared.ErrAlreadyExists,
				"mission already published for "+m.Period.String())
		}
	}

	sorted := append([]*mission.Challenge(nil), challenges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	m.ChallengeIDs = make([]string, 0, len(sorted))
	for _, c := range sorted {
		c.MissionID = m.ID
		st.challenges[c.ID] = copyChallenge(c)
		m.ChallengeIDs = append(m.ChallengeIDs, c.ID)
	}
	st.missions[m.ID] = copyMission(m)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

type progressRepo struct{ u *unitOfWork }

func (r progressRepo) Get(ctx context.Context, childID, missionID string) (*mission.Progress, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	p, ok := r.u.state().progress[progressKey{childID, missionID}]
	if !ok {
		return nil, shared.NewDomainError("mission", "GetProgress", shared.ErrNotFound, "progress not found")
	}
	return copyProgress(p), nil
}

func (r progressRepo) Upsert(ctx context.Context, p *mission.Progress) error {
	if err := r.u.check(); err != nil {
		return err
	}
	key := progressKey{p.ChildID, p.MissionID}
	next := copyProgress(p)
	if cur, ok := r.u.state().progress[key]; ok {
		next.StartedAt = cur.StartedAt
		if cur.IsCompleted() {
			t := *cur.CompletedAt
			next.CompletedAt = &t
		}
	}
	r.u.state().progress[key] = next
	return nil
}

func (r progressRepo) ListByChild(ctx context.Context, childID string) ([]*mission.Progress, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*mission.Progress, 0)
	for k, p := range r.u.state().progress {
		if k.childID == childID {
			out = append(out, copyProgress(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

type submissionRepo struct{ u *unitOfWork }

func (r submissionRepo) Create(ctx context.Context, s *challenge.Submission) error {
	if err := r.u.check(); err != nil {
		return err
	}
	st := r.u.state()
	for _, other := range st.submissions {
		if other.ChildID == s.ChildID && other.ChallengeID == s.ChallengeID && other.Status.IsActive() {
			return shared.ErrDuplicateSubmission
		}
	}
	st.submissions[s.ID] = copySubmission(s)
	return nil
}

func (r submissionRepo) GetByID(ctx context.Context, id string) (*challenge.Submission, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	s, ok := r.u.state().submissions[id]
	if !ok {
		return nil, shared.ErrSubmissionNotFound
	}
	return copySubmission(s), nil
}

func (r submissionRepo) GetByIDForUpdate(ctx context.Context, id string) (*challenge.Submission, error) {
	return r.GetByID(ctx, id)
}

func (r submissionRepo) SaveReview(ctx context.Context, s *challenge.Submission) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cur, ok := r.u.state().submissions[s.ID]
	if !ok {
		return shared.ErrSubmissionNotFound
	}
	if cur.Status != challenge.StatusPending {
		return shared.ErrAlreadyReviewed
	}
	r.u.state().submissions[s.ID] = copySubmission(s)
	return nil
}

func (r submissionRepo) ListByChild(ctx context.Context, childID string, f challenge.StatusFilter) ([]*challenge.Submission, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*challenge.Submission, 0)
	for _, s := range r.u.state().submissions {
		if s.ChildID == childID && f.Matches(s.Status) {
			out = append(out, copySubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r submissionRepo) ApprovedHistory(ctx context.Context, childID string) (rank.History, error) {
	if err := r.u.check(); err != nil {
		return rank.History{}, err
	}
	var h rank.History
	for _, s := range r.u.state().submissions {
		if s.ChildID == childID && s.Status == challenge.StatusApproved {
			h.ApprovedChallenges++
			h.CumulativePoints += s.PointsAwarded
		}
	}
	return h, nil
}

func (r submissionRepo) CountApprovedInMission(ctx context.Context, childID, missionID string) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, s := range r.u.state().submissions {
		if s.ChildID == childID && s.MissionID == missionID && s.Status == challenge.StatusApproved {
			seen[s.ChallengeID] = struct{}{}
		}
	}
	return len(seen), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

type rewardRepo struct{ u *unitOfWork }

func (r rewardRepo) Create(ctx context.Context, rw *reward.Reward) error {
	if err := r.u.check(); err != nil {
		return err
	}
	if err := rw.Validate(); err != nil {
		return err
	}
	for _, other := range r.u.state().rewards {
		if other.Code == rw.Code || other.ID == rw.ID {
			return shared.NewDomainError("reward", "Create", shared.ErrAlreadyExists, "reward code already exists")
		}
	}
	r.u.state().rewards[rw.ID] = copyReward(rw)
	return nil
}

func (r rewardRepo) GetByID(ctx context.Context, id string) (*reward.Reward, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	rw, ok := r.u.state().rewards[id]
	if !ok {
		return nil, shared.ErrRewardNotFound
	}
	return copyReward(rw), nil
}

func (r rewardRepo) GetByIDForUpdate(ctx context.Context, id string) (*reward.Reward, error) {
	return r.GetByID(ctx, id)
}

func (r rewardRepo) GetByCode(ctx context.Context, code string) (*reward.Reward, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	for _, rw := range r.u.state().rewards {
		if rw.Code == code {
			return copyReward(rw), nil
		}
	}
	return nil, shared.ErrRewardNotFound
}

func (r rewardRepo) List(ctx context.Context, f reward.CatalogFilter) ([]*reward.Reward, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*reward.Reward, 0)
	for _, rw := range r.u.state().rewards {
		if f.Matches(rw) {
			out = append(out, copyReward(rw))
		}
	}
	reward.SortCatalog(out)
	return out, nil
}

func (r rewardRepo) DecrementStock(ctx context.Context, id string) error {
	if err := r.u.check(); err != nil {
		return err
	}
	rw, ok := r.u.state().rewards[id]
	if !ok {
		return shared.ErrRewardNotFound
	}
	return rw.TakeOne()
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type redemptionRepo struct{ u *unitOfWork }

func (r redemptionRepo) Create(ctx context.Context, red *reward.Redemption) error {
	if err := r.u.check(); err != nil {
		return err
	}
	if _, ok := r.u.state().children[red.ChildID]; !ok {
		return shared.ErrChildNotFound
	}
	r.u.state().redemptions[red.ID] = copyRedemption(red)
	return nil
}

func (r redemptionRepo) ListByChild(ctx context.Context, childID string) ([]*reward.Redemption, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*reward.Redemption, 0)
	for _, red := range r.u.state().redemptions {
		if red.ChildID == childID {
			out = append(out, copyRedemption(red))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RedeemedAt.Equal(out[j].RedeemedAt) {
			return out[i].RedeemedAt.After(out[j].RedeemedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r redemptionRepo) HasReward(ctx context.Context, childID, rewardCode string) (bool, error) {
	if err := r.u.check(); err != nil {
		return false, err
	}
	for _, red := range r.u.state().redemptions {
		if red.ChildID == childID && red.RewardCode == rewardCode {
			return true, nil
		}
	}
	return false, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INBOX
// ══════════════════════════════════════════════════════════════════════════════

type inboxRepo struct{ u *unitOfWork }

func (r inboxRepo) Create(ctx context.Context, n *notification.Notification) error {
	if err := r.u.check(); err != nil {
		return err
	}
	st := r.u.state()
	if _, ok := st.inbox[n.ID]; ok {
		return shared.NewDomainError("notification", "Create", shared.ErrAlreadyExists, "notification already exists")
	}
	if _, ok := st.children[n.ChildID]; n.ChildID != "" && !ok {
		return shared.ErrChildNotFound
	}
	st.inbox[n.ID] = copyNotification(n)
	return nil
}

func (r inboxRepo) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	n, ok := r.u.state().inbox[id]
	if !ok {
		return nil, shared.ErrNotificationNotFound
	}
	return copyNotification(n), nil
}

// Update only touches the read and delivery columns, like the SQL version.
func (r inboxRepo) Update(ctx context.Context, n *notification.Notification) error {
	if err := r.u.check(); err != nil {
		return err
	}
	cur, ok := r.u.state().inbox[n.ID]
	if !ok {
		return shared.ErrNotificationNotFound
	}
	next := copyNotification(cur)
	upd := copyNotification(n)
	next.Read, next.ReadAt = upd.Read, upd.ReadAt
	next.Delivered, next.Channel = upd.Delivered, upd.Channel
	next.DeliveryError, next.DeliveredAt = upd.DeliveryError, upd.DeliveredAt
	r.u.state().inbox[n.ID] = next
	return nil
}

func (r inboxRepo) ListByRecipient(ctx context.Context, recipientID string, f notification.InboxFilter) ([]*notification.Notification, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	out := make([]*notification.Notification, 0)
	for _, n := range r.u.state().inbox {
		if n.RecipientID != recipientID || (f.UnreadOnly && n.Read) {
			continue
		}
		out = append(out, copyNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Offset >= len(out) {
		return []*notification.Notification{}, nil
	}
	out = out[max(f.Offset, 0):]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r inboxRepo) Count(ctx context.Context, recipientID string, unreadOnly bool) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, x := range r.u.state().inbox {
		if x.RecipientID == recipientID && !(unreadOnly && x.Read) {
			n++
		}
	}
	return n, nil
}

func (r inboxRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	if err := r.u.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, x := range r.u.state().inbox {
		if x.RecipientID == recipientID && x.MarkRead(at) {
			n++
		}
	}
	return n, nil
}
