package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avealis/inboxpilot/internal/domain"
)

// MemoryStore — хранилище заявок в памяти для local-режима и тестов.
// Держит те же инварианты, что и Postgres-реализация: один PENDING на
// (agent_id, item_id), guard от повторной резолюции.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*domain.Approval
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*domain.Approval)}
}

func (s *MemoryStore) CreatePending(_ context.Context, app *domain.Approval) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// check-then-insert под одним мьютексом — гонка исключена
	for _, existing := range s.byID {
		if existing.Status == domain.StatusPending &&
			existing.AgentID == app.AgentID && existing.ItemID == app.ItemID {
			return false, nil
		}
	}

	cp := *app
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.Status = domain.StatusPending
	cp.ExecStatus = domain.ExecutionNone
	s.byID[cp.ID] = &cp
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	if err := app.CanTransitionTo(status); err != nil {
		return nil, err
	}

	now := time.Now()
	app.Status = status
	app.ResolvedAt = &now
	if reviewerID != "" {
		app.ReviewerID = &reviewerID
	}
	if comment != "" {
		app.Comment = &comment
	}

	cp := *app
	return &cp, nil
}

func (s *MemoryStore) SetExecutionOutcome(_ context.Context, id string, status domain.ExecutionStatus, execErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return domain.ErrApprovalNotFound
	}
	app.ExecStatus = status
	app.ExecError = execErr
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, userID string) ([]*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Approval, 0)
	for _, app := range s.byID {
		if app.Status != domain.StatusPending {
			continue
		}
		if userID != "" && app.UserID != userID {
			continue
		}
		cp := *app
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
