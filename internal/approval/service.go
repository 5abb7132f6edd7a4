package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/executor"
)

// EventEmitter — то, что сервису нужно от шины событий.
type EventEmitter interface {
	Emit(eventType domain.EventType, agentID, userID string, payload map[string]any) domain.Event
}

// Service реализует HITL-воркфлоу: идемпотентное создание заявок,
// резолюция оператором и делегированное исполнение одобренных действий.
//
// Ключевая семантика: статус апрува и исход исполнения независимы.
// APPROVED ставится до попытки исполнения и не откатывается при его
// провале — провал фиксируется в execution_status.
type Service struct {
	store    Store
	registry *executor.Registry
	events   EventEmitter
	logger   *zap.Logger
}

func NewService(store Store, registry *executor.Registry, events EventEmitter, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		events:   events,
		logger:   logger.Named("approval"),
	}
}

// Request создает PENDING-заявку для заблокированного решения.
// Повторный запрос при живом PENDING по той же паре (агент, письмо)
// подавляется — возвращается false без ошибки.
func (s *Service) Request(ctx context.Context, agentID, userID string, item domain.MailItem, d domain.Decision) (bool, error) {
	app := &domain.Approval{
		ID:       uuid.New().String(),
		AgentID:  agentID,
		UserID:   userID,
		ItemID:   item.ID,
		Item:     item,
		Decision: d,
	}

	created, err := s.store.CreatePending(ctx, app)
	if err != nil {
		return false, fmt.Errorf("approval: create failed: %w", err)
	}
	if !created {
		s.logger.Info("duplicate approval request suppressed",
			zap.String("agent_id", agentID),
			zap.String("item_id", item.ID))
		return false, nil
	}

	s.events.Emit(domain.EventApprovalRequested, agentID, userID, map[string]any{
		"approval_id": app.ID,
		"item_id":     item.ID,
		"action":      d.Action,
		"confidence":  d.Confidence,
	})
	return true, nil
}

// Approve переводит заявку в APPROVED и запускает делегированное исполнение.
// Ошибка исполнения изолирована от статуса: заявка остается APPROVED,
// провал записывается в execution_status + execution_error.
func (s *Service) Approve(ctx context.Context, approvalID, reviewerID, comment string) (*domain.Approval, error) {
	app, err := s.store.Resolve(ctx, approvalID, domain.StatusApproved, reviewerID, comment)
	if err != nil {
		return nil, err
	}

	execStatus := domain.ExecutionCompleted
	execErrMsg := ""
	if execErr := s.registry.Execute(ctx, app.Item, app.Decision); execErr != nil {
		// Сюда же попадает ErrUnsupportedAction — наружу не бросаем
		execStatus = domain.ExecutionFailed
		execErrMsg = execErr.Error()
	}

	if err := s.store.SetExecutionOutcome(ctx, app.ID, execStatus, execErrMsg); err != nil {
		// Исход потерять нельзя: громкий лог, но оператору ошибку не отдаем —
		// решение уже зафиксировано
		s.logger.Error("failed to persist execution outcome",
			zap.String("approval_id", app.ID), zap.Error(err))
	}
	app.ExecStatus = execStatus
	app.ExecError = execErrMsg

	s.events.Emit(domain.EventApprovalResolved, app.AgentID, app.UserID, map[string]any{
		"approval_id":      app.ID,
		"status":           string(app.Status),
		"execution_status": string(execStatus),
	})

	s.logger.Info("approval decided",
		zap.String("approval_id", app.ID),
		zap.String("reviewer_id", reviewerID),
		zap.String("result", string(domain.StatusApproved)),
		zap.String("execution_status", string(execStatus)))
	return app, nil
}

// Reject фиксирует отказ оператора. Исполнение не запускается никогда.
func (s *Service) Reject(ctx context.Context, approvalID, reviewerID, reason string) (*domain.Approval, error) {
	app, err := s.store.Resolve(ctx, approvalID, domain.StatusRejected, reviewerID, reason)
	if err != nil {
		return nil, err
	}

	s.events.Emit(domain.EventApprovalResolved, app.AgentID, app.UserID, map[string]any{
		"approval_id": app.ID,
		"status":      string(app.Status),
		"reason":      reason,
	})

	s.logger.Info("approval decided",
		zap.String("approval_id", app.ID),
		zap.String("reviewer_id", reviewerID),
		zap.String("result", string(domain.StatusRejected)))
	return app, nil
}

// Get возвращает заявку по id (ErrApprovalNotFound для неизвестного).
func (s *Service) Get(ctx context.Context, id string) (*domain.Approval, error) {
	return s.store.Get(ctx, id)
}

// PendingForUser — очередь ручного разбора пользователя.
func (s *Service) PendingForUser(ctx context.Context, userID string) ([]*domain.Approval, error) {
	return s.store.ListPending(ctx, userID)
}
