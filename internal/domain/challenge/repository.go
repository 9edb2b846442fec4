package challenge

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/domain/rank"
)

// Repository определяет операции с заявками.
type Repository interface {
	// Create вставляет заявку. Уникальность активной заявки на пару
	// (ребёнок, задание) проверяется хранилищем в момент вставки.
	// Возвращает ErrDuplicateSubmission при нарушении.
	Create(ctx context.Context, s *Submission) error

	// GetByID возвращает заявку.
	// Возвращает ErrSubmissionNotFound, если заявка не найдена.
	GetByID(ctx context.Context, id string) (*Submission, error)

	// GetByIDForUpdate возвращает заявку и блокирует строку до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*Submission, error)

	// SaveReview сохраняет результат рассмотрения, только если заявка
	// всё ещё PENDING. Иначе возвращает ErrAlreadyReviewed.
	SaveReview(ctx context.Context, s *Submission) error

	// ListByChild возвращает заявки ребёнка, новые первыми.
	ListByChild(ctx context.Context, childID string, filter StatusFilter) ([]*Submission, error)

	// ApprovedHistory возвращает историю одобренных заявок для RankEngine.
	ApprovedHistory(ctx context.Context, childID string) (rank.History, error)

	// CountApprovedInMission возвращает число одобренных заданий миссии.
	CountApprovedInMission(ctx context.Context, childID, missionID string) (int, error)
}
