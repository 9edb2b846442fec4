package child

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/domain/rank"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с детьми.
// Баланс очков здесь не изменяется - см. ledger.Repository.
type Repository interface {
	// Create создаёт ребёнка.
	// Возвращает ErrSecretCodeAlreadyExists при коллизии секретного кода.
	Create(ctx context.Context, c *Child) error

	// GetByID возвращает ребёнка по ID.
	// Возвращает ErrChildNotFound, если ребёнок не найден.
	GetByID(ctx context.Context, id string) (*Child, error)

	// GetByIDForUpdate возвращает ребёнка и блокирует строку
	// до конца транзакции (SELECT ... FOR UPDATE).
	GetByIDForUpdate(ctx context.Context, id string) (*Child, error)

	// GetBySecretCode ищет ребёнка по секретному коду инициации.
	// Возвращает ErrSecretCodeNotFound, если код неизвестен.
	GetBySecretCode(ctx context.Context, code string) (*Child, error)

	// ListByGuardian возвращает детей опекуна по дате создания.
	ListByGuardian(ctx context.Context, guardianID string) ([]*Child, error)

	// ListIDs возвращает ID детей постранично (для фоновых задач).
	ListIDs(ctx context.Context, opts ListOptions) ([]string, error)

	// UpdateProfile сохраняет профиль, инициацию, настройки и наставника.
	// Не трогает баланс и ранг.
	UpdateProfile(ctx context.Context, c *Child) error

	// UpdateRank сохраняет ранг, выведенный через Child.SyncRank.
	UpdateRank(ctx context.Context, id string, r rank.Rank) error

	// Delete удаляет ребёнка вместе с заявками, обменами и прогрессом.
	Delete(ctx context.Context, id string) error
}

// GuardianRepository хранит контакты опекунов для уведомлений.
type GuardianRepository interface {
	// Upsert создаёт или обновляет контакт опекуна.
	Upsert(ctx context.Context, g *Guardian) error

	// GetByID возвращает опекуна.
	// Возвращает ErrGuardianNotFound, если опекун неизвестен.
	GetByID(ctx context.Context, id string) (*Guardian, error)
}

// ListOptions содержит параметры пагинации.
type ListOptions struct {
	// Offset - смещение (для пагинации).
	Offset int

	// Limit - максимальное количество записей.
	Limit int
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 100}
}
