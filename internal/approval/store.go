package approval

import (
	"context"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Store — единственный источник правды про "есть ли уже PENDING по этому
// письму". Реализация обязана делать check-then-insert гонкоустойчиво
// (partial unique index в Postgres, мьютекс в памяти).
type Store interface {
	// CreatePending вставляет новую PENDING-заявку. Возвращает false, если
	// PENDING по паре (agent_id, item_id) уже существует — дубликат
	// подавляется, не вставляется.
	CreatePending(ctx context.Context, app *domain.Approval) (bool, error)

	// Get возвращает domain.ErrApprovalNotFound для неизвестного id.
	Get(ctx context.Context, id string) (*domain.Approval, error)

	// Resolve атомарно переводит PENDING -> status (guard по статусу:
	// повторная резолюция дает domain.ErrAlreadyProcessed).
	Resolve(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.Approval, error)

	// SetExecutionOutcome фиксирует исход делегированного исполнения.
	// Статус апрува не трогает.
	SetExecutionOutcome(ctx context.Context, id string, status domain.ExecutionStatus, execErr string) error

	// ListPending — очередь ручного разбора пользователя, старые сверху.
	ListPending(ctx context.Context, userID string) ([]*domain.Approval, error)
}
