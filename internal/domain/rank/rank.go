// Package rank вычисляет ранг ребёнка из его истории.
//
// Ранг никогда не присваивается напрямую: он всегда результат Derive
// от накопленных одобренных заданий и заработанных очков.
package rank

import "fmt"

// Rank - уровень прогресса ребёнка.
type Rank string

const (
	Iniciado Rank = "INICIADO"
	Valiente Rank = "VALIENTE"
	Sabio    Rank = "SABIO"
	Maestro  Rank = "MAESTRO"
)

// All возвращает ранги по возрастанию.
func All() []Rank {
	return []Rank{Iniciado, Valiente, Sabio, Maestro}
}

// IsValid проверяет, что ранг известен.
func (r Rank) IsValid() bool {
	switch r {
	case Iniciado, Valiente, Sabio, Maestro:
		return true
	default:
		return false
	}
}

// Ordinal возвращает позицию ранга (0 - INICIADO).
func (r Rank) Ordinal() int {
	for i, x := range All() {
		if x == r {
			return i
		}
	}
	return -1
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return string(r)
}

// Parse разбирает ранг из строки хранилища.
func Parse(s string) (Rank, error) {
	r := Rank(s)
	if !r.IsValid() {
		return "", fmt.Errorf("rank: unknown value %q", s)
	}
	return r, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

// Threshold - минимальные требования для ранга.
type Threshold struct {
	Rank               Rank `json:"rank"`
	ApprovedChallenges int  `json:"approvedChallenges"`
	CumulativePoints   int  `json:"cumulativePoints"`
}

// Thresholds - пороги по возрастанию. MAESTRO требует и задания, и очки.
var Thresholds = []Threshold{
	{Rank: Iniciado, ApprovedChallenges: 0, CumulativePoints: 0},
	{Rank: Valiente, ApprovedChallenges: 10, CumulativePoints: 0},
	{Rank: Sabio, ApprovedChallenges: 25, CumulativePoints: 0},
	{Rank: Maestro, ApprovedChallenges: 50, CumulativePoints: 2500},
}

// History - накопленная история ребёнка, из которой выводится ранг.
type History struct {
	// CumulativePoints - сумма очков за все одобренные задания.
	CumulativePoints int `json:"cumulativePoints"`
	// ApprovedChallenges - количество одобренных заданий.
	ApprovedChallenges int `json:"approvedChallenges"`
}

// Derive возвращает наивысший ранг, пороги которого выполнены.
func Derive(h History) Rank {
	result := Iniciado
	for _, t := range Thresholds {
		if h.ApprovedChallenges >= t.ApprovedChallenges && h.CumulativePoints >= t.CumulativePoints {
			result = t.Rank
		}
	}
	return result
}

// Next возвращает следующий порог или false, если ранг максимальный.
func Next(r Rank) (Threshold, bool) {
	idx := r.Ordinal()
	if idx < 0 || idx+1 >= len(Thresholds) {
		return Threshold{}, false
	}
	return Thresholds[idx+1], true
}
