package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avealis/inboxpilot/internal/domain"
)

// MemoryConfigStore — хранилище конфигураций в памяти для local-режима
// и тестов. Семантика upsert та же, что у Postgres-реализации.
type MemoryConfigStore struct {
	mu   sync.Mutex
	byID map[string]domain.AgentConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{byID: make(map[string]domain.AgentConfig)}
}

func (s *MemoryConfigStore) ListAgentConfigs(_ context.Context) ([]domain.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AgentConfig, 0, len(s.byID))
	for _, cfg := range s.byID {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryConfigStore) GetAgentConfig(_ context.Context, id string) (domain.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[id]
	if !ok {
		return domain.AgentConfig{}, domain.ErrAgentNotFound
	}
	return cfg, nil
}

func (s *MemoryConfigStore) SaveAgentConfig(_ context.Context, cfg domain.AgentConfig) (domain.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg = cfg.Normalize()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()
	s.byID[cfg.ID] = cfg
	return cfg, nil
}
