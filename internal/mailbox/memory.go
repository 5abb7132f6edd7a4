package mailbox

import (
	"context"
	"sync"

	"github.com/avealis/inboxpilot/internal/domain"
)

// MemorySource — очередь в памяти для local-режима и тестов.
// Письма отдаются в порядке добавления, пока не помечены обработанными.
type MemorySource struct {
	mu        sync.Mutex
	items     []domain.MailItem
	processed map[string]bool
}

func NewMemorySource() *MemorySource {
	return &MemorySource{processed: make(map[string]bool)}
}

func (s *MemorySource) Push(items ...domain.MailItem) {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
}

func (s *MemorySource) Next(_ context.Context, limit int) ([]domain.MailItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.MailItem, 0, limit)
	for _, it := range s.items {
		if s.processed[it.ID] {
			continue
		}
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySource) MarkProcessed(_ context.Context, itemID string) error {
	s.mu.Lock()
	s.processed[itemID] = true
	s.mu.Unlock()
	return nil
}
