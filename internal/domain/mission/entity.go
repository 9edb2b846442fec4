// Package mission содержит ежемесячные миссии, их задания и прогресс детей.
//
// Миссии и задания неизменяемы после публикации, поэтому их можно
// свободно кешировать. Прогресс вычисляется из одобренных заявок.
package mission

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROOF KINDS
// ══════════════════════════════════════════════════════════════════════════════

// ProofKind - вид доказательства выполнения задания.
type ProofKind string

const (
	ProofPhoto ProofKind = "photo"
	ProofVideo ProofKind = "video"
	ProofAudio ProofKind = "audio"
)

// IsValid проверяет вид доказательства.
func (k ProofKind) IsValid() bool {
	switch k {
	case ProofPhoto, ProofVideo, ProofAudio:
		return true
	default:
		return false
	}
}

// ParseProofKind разбирает вид доказательства.
func ParseProofKind(s string) (ProofKind, error) {
	k := ProofKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.NewDomainError("mission", "ParseProofKind", shared.ErrValidation,
			"invalid proof type, must be photo, video, or audio")
	}
	return k, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSION & CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// Period - год и месяц миссии.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Validate проверяет период.
func (p Period) Validate() error {
	if p.Year < 2000 || p.Year > 9999 || p.Month < 1 || p.Month > 12 {
		return shared.NewDomainError("mission", "Validate", shared.ErrValueOutOfRange,
			"period must be a valid year and month (1-12)")
	}
	return nil
}

// String возвращает период в формате YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodOf возвращает период для момента времени в указанной зоне.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Period{Year: local.Year(), Month: int(local.Month())}
}

// Mission - тематическая миссия месяца.
type Mission struct {
	ID                 string    `json:"id"`
	Period             Period    `json:"period"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	ArchangelID        string    `json:"archangelId,omitempty"`
	PointsPerChallenge int       `json:"pointsPerChallenge"`
	ChallengeIDs       []string  `json:"challengeIds"`
	PublishedAt        time.Time `json:"publishedAt"`
}

// TotalChallenges возвращает количество заданий миссии.
func (m *Mission) TotalChallenges() int {
	return len(m.ChallengeIDs)
}

// Challenge - атомарное задание миссии.
type Challenge struct {
	ID                string      `json:"id"`
	MissionID         string      `json:"missionId"`
	Order             int         `json:"order"`
	Title             string      `json:"title"`
	Description       string      `json:"description,omitempty"`
	AllowedProofKinds []ProofKind `json:"allowedProofKinds"`
	PointReward       int         `json:"pointReward"`
}

// Allows проверяет, разрешён ли вид доказательства.
func (c *Challenge) Allows(kind ProofKind) bool {
	for _, k := range c.AllowedProofKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Validate проверяет задание перед публикацией.
func (c *Challenge) Validate() error {
	if c.PointReward < 0 {
		return shared.NewDomainError("mission", "ValidateChallenge", shared.ErrNegativeValue,
			"point reward cannot be negative")
	}
	if len(c.AllowedProofKinds) == 0 {
		return shared.NewDomainError("mission", "ValidateChallenge", shared.ErrValidation,
			"challenge must allow at least one proof kind")
	}
	for _, k := range c.AllowedProofKinds {
		if !k.IsValid() {
			return shared.NewDomainError("mission", "ValidateChallenge", shared.ErrValidation,
				fmt.Sprintf("unknown proof kind %q", k))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - прогресс ребёнка в миссии.
// CompletedAt выставляется один раз и никогда не сбрасывается.
type Progress struct {
	ChildID              string     `json:"childId"`
	MissionID            string     `json:"missionId"`
	CompletionPercentage int        `json:"completionPercentage"`
	StartedAt            time.Time  `json:"startedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// NewProgress создаёт пустой прогресс.
func NewProgress(childID, missionID string, now time.Time) *Progress {
	return &Progress{
		ChildID:   childID,
		MissionID: missionID,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsCompleted возвращает true, если миссия завершена.
func (p *Progress) IsCompleted() bool {
	return p.CompletedAt != nil
}

// CompletionPercentage вычисляет round(approved / total * 100) в пределах [0, 100].
func CompletionPercentage(approved, total int) (int, error) {
	if total <= 0 {
		return 0, shared.ErrMissionHasNoChallenges
	}
	if approved < 0 {
		approved = 0
	}
	pct := int(math.Round(float64(approved) / float64(total) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct, nil
}

// Apply записывает новое значение процента.
// changed - изменилась ли запись, completed - достигнут ли 100% впервые.
// Повторный вызов с тем же значением ничего не меняет.
func (p *Progress) Apply(pct int, now time.Time) (changed, completed bool) {
	if pct != p.CompletionPercentage {
		p.CompletionPercentage = pct
		changed = true
	}
	if pct >= 100 && !p.IsCompleted() {
		at := now
		p.CompletedAt = &at
		changed = true
		completed = true
	}
	if changed {
		p.UpdatedAt = now
	}
	return changed, completed
}
