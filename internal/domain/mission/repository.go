package mission

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - чтение опубликованных миссий и заданий.
// Данные неизменяемы, реализации могут кешировать их.
type Catalog interface {
	// GetByID возвращает миссию.
	// Возвращает ErrMissionNotFound, если миссия не найдена.
	GetByID(ctx context.Context, id string) (*Mission, error)

	// GetByPeriod возвращает миссию месяца.
	// Возвращает ErrMissionNotFound, если миссия не опубликована.
	GetByPeriod(ctx context.Context, p Period) (*Mission, error)

	// GetChallenge возвращает задание.
	// Возвращает ErrChallengeNotFound, если задание не найдено.
	GetChallenge(ctx context.Context, id string) (*Challenge, error)

	// ListChallenges возвращает задания миссии по порядку.
	ListChallenges(ctx context.Context, missionID string) ([]*Challenge, error)
}

// Repository - каталог плюс публикация (внешний процесс курирования и seed).
type Repository interface {
	Catalog

	// Publish сохраняет миссию вместе с заданиями.
	// Возвращает ErrAlreadyExists, если миссия на этот период уже есть.
	Publish(ctx context.Context, m *Mission, challenges []*Challenge) error
}

// ProgressRepository хранит прогресс детей по миссиям.
type ProgressRepository interface {
	// Get возвращает прогресс или ErrNotFound.
	Get(ctx context.Context, childID, missionID string) (*Progress, error)

	// Upsert создаёт или обновляет запись прогресса.
	// completed_at в хранилище никогда не перезаписывается на NULL.
	Upsert(ctx context.Context, p *Progress) error

	// ListByChild возвращает прогресс ребёнка по всем начатым миссиям.
	ListByChild(ctx context.Context, childID string) ([]*Progress, error)
}
