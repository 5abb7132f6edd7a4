package postgres

/*
Файл approval_repo.go содержит реализацию методов для механизма Human-in-the-loop (HITL, «человек в контуре»).

Два инварианта живут на стороне базы:
 1. не более одного PENDING на пару (agent_id, item_id) — partial unique index;
 2. защита от Double Decision — UPDATE с условием WHERE status = 'PENDING'.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avealis/inboxpilot/internal/domain"
)

const approvalColumns = `id, agent_id, user_id, item_id, item, decision, status,
	execution_status, execution_error, reviewer_id, comment, created_at, resolved_at`

// CreatePending вставляет новую PENDING-заявку. Дубликат (живой PENDING по той
// же паре агент+письмо) гасится на уровне индекса: ON CONFLICT DO NOTHING,
// вызывающему возвращается false без ошибки.
func (s *Store) CreatePending(ctx context.Context, app *domain.Approval) (bool, error) {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO approvals (id, agent_id, user_id, item_id, item, decision, status, execution_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', 'NONE', $7)
		ON CONFLICT (agent_id, item_id) WHERE status = 'PENDING' DO NOTHING`

	ct, err := s.pool.Exec(ctx, query,
		app.ID, app.AgentID, app.UserID, app.ItemID, app.Item, app.Decision, app.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	app, err := scanApproval(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrApprovalNotFound
		}
		return nil, err
	}
	return app, nil
}

// Resolve атомарно переводит заявку из PENDING в терминальный статус.
// Условие WHERE status = 'PENDING' предотвращает Double Decision: второй
// оператор, нажавший кнопку позже, получит ErrAlreadyProcessed.
func (s *Store) Resolve(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.Approval, error) {
	query := `
		UPDATE approvals
		SET status = $1,
		    reviewer_id = NULLIF($2, ''),
		    comment = NULLIF($3, ''),
		    resolved_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING ` + approvalColumns

	app, err := scanApproval(s.pool.QueryRow(ctx, query, string(status), reviewerID, comment, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Строк нет: либо ID неверный, либо решение уже было принято раньше.
			// Различаем вторым запросом — для вызывающего это разные ошибки.
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return nil, domain.ErrAlreadyProcessed
			}
			return nil, domain.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("postgres: failed to resolve approval: %w", err)
	}
	return app, nil
}

// SetExecutionOutcome фиксирует исход делегированного исполнения.
// Статус заявки (APPROVED) не трогает.
func (s *Store) SetExecutionOutcome(ctx context.Context, id string, status domain.ExecutionStatus, execErr string) error {
	query := `UPDATE approvals SET execution_status = $1, execution_error = $2 WHERE id = $3`

	ct, err := s.pool.Exec(ctx, query, string(status), execErr, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to set execution outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrApprovalNotFound
	}
	return nil
}

// ListPending — очередь ручного разбора (Decision Queue), старые сверху.
func (s *Store) ListPending(ctx context.Context, userID string) ([]*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE status = 'PENDING'`
	var args []interface{}
	if userID != "" {
		query += " AND user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at ASC LIMIT 100"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Approval, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, app)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var (
		app                 domain.Approval
		status, execStatus  string
		reviewerID, comment sql.NullString // Используем для обработки NULL из БД
		resolvedAt          sql.NullTime
	)

	err := row.Scan(
		&app.ID, &app.AgentID, &app.UserID, &app.ItemID,
		&app.Item, &app.Decision, &status,
		&execStatus, &app.ExecError, &reviewerID, &comment,
		&app.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = domain.ApprovalStatus(status)
	app.ExecStatus = domain.ExecutionStatus(execStatus)

	// Маппим NULL значения в указатели (если есть)
	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val
	}
	if comment.Valid {
		val := comment.String
		app.Comment = &val
	}
	if resolvedAt.Valid {
		val := resolvedAt.Time
		app.ResolvedAt = &val
	}
	return &app, nil
}
