package actionlog

import (
	"context"
	"sync"
)

// MemoryStorage — накопитель записей в памяти для local-режима и тестов.
type MemoryStorage struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) WriteBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
