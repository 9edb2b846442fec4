// Package challenge содержит машину состояний заявок на выполнение заданий.
//
//	PENDING ──► APPROVED  (терминальное, очки начислены)
//	   │
//	   └──────► REJECTED  (терминальное, можно подать заново)
//
// На пару (ребёнок, задание) допускается не более одной заявки
// в статусе PENDING или APPROVED.
package challenge

import (
	"strings"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус заявки.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsValid проверяет статус.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsActive возвращает true для статусов, блокирующих повторную подачу.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved
}

// Decision - решение модератора.
type Decision string

const (
	DecisionApprove Decision = "APPROVED"
	DecisionReject  Decision = "REJECTED"
)

// ParseDecision разбирает решение.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", shared.ErrInvalidDecision
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

// MaxProofRefs ограничивает количество ссылок на доказательства.
const MaxProofRefs = 10

// Submission - заявка ребёнка о выполнении задания.
type Submission struct {
	ID            string            `json:"id"`
	ChildID       string            `json:"childId"`
	ChallengeID   string            `json:"challengeId"`
	MissionID     string            `json:"missionId"`
	ProofKind     mission.ProofKind `json:"proofKind"`
	ProofRefs     []string          `json:"proofRefs"`
	Status        Status            `json:"status"`
	SubmittedAt   time.Time         `json:"submittedAt"`
	ReviewedAt    *time.Time        `json:"reviewedAt,omitempty"`
	ReviewerID    string            `json:"reviewerId,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	PointsAwarded int               `json:"pointsAwarded"`
}

// NewSubmission создаёт заявку в статусе PENDING.
// Очки на этом шаге не начисляются.
func NewSubmission(childID string, ch *mission.Challenge, kind mission.ProofKind, refs []string, now time.Time) (*Submission, error) {
	cleaned := make([]string, 0, len(refs))
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return nil, shared.ErrProofRequired
	}
	if len(cleaned) > MaxProofRefs {
		return nil, shared.NewDomainError("challenge", "Submit", shared.ErrValidation,
			"too many proof references")
	}
	if !kind.IsValid() || !ch.Allows(kind) {
		return nil, shared.ErrProofKindNotAllowed.WithDetail("allowedTypes", ch.AllowedProofKinds)
	}

	return &Submission{
		ID:          shared.NewID(),
		ChildID:     childID,
		ChallengeID: ch.ID,
		MissionID:   ch.MissionID,
		ProofKind:   kind,
		ProofRefs:   cleaned,
		Status:      StatusPending,
		SubmittedAt: now,
	}, nil
}

// Review переводит заявку из PENDING в терминальное состояние.
// Повторное рассмотрение запрещено: заявку можно рассмотреть ровно один раз.
func (s *Submission) Review(d Decision, reviewerID, notes string, pointReward int, now time.Time) error {
	if s.Status != StatusPending {
		return shared.ErrAlreadyReviewed.WithDetail("status", s.Status)
	}

	switch d {
	case DecisionApprove:
		s.Status = StatusApproved
		s.PointsAwarded = pointReward
	case DecisionReject:
		s.Status = StatusRejected
		s.PointsAwarded = 0
	default:
		return shared.ErrInvalidDecision
	}

	at := now
	s.ReviewedAt = &at
	s.ReviewerID = reviewerID
	s.Notes = strings.TrimSpace(notes)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTERS
// ══════════════════════════════════════════════════════════════════════════════

// StatusFilter - явный фильтр списка заявок по статусу.
// Пустой фильтр означает "все статусы".
type StatusFilter struct {
	Statuses []Status
}

// ParseStatusFilter разбирает значение query-параметра ("", "PENDING", "APPROVED,REJECTED").
func ParseStatusFilter(raw string) (StatusFilter, error) {
	var f StatusFilter
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		st := Status(part)
		if !st.IsValid() {
			return StatusFilter{}, shared.NewDomainError("challenge", "ParseStatusFilter", shared.ErrValidation,
				"status must be PENDING, APPROVED or REJECTED")
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, nil
}

// Matches проверяет статус по фильтру.
func (f StatusFilter) Matches(s Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, x := range f.Statuses {
		if x == s {
			return true
		}
	}
	return false
}

// Strings возвращает статусы в виде строк (для SQL).
func (f StatusFilter) Strings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}
