package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockMailProvider — провайдер для local/offline режима и тестов.
// Имитирует задержку бэкенда и записывает выполненные операции.
type MockMailProvider struct {
	mu    sync.Mutex
	calls []MockCall

	// FailOps — операции, на которых мок возвращает ошибку (для тестов)
	FailOps map[MailOp]bool
	// Latency выключается нулем (в тестах)
	MaxLatency time.Duration
}

type MockCall struct {
	Op        MailOp
	MessageID string
}

func NewMockMailProvider() *MockMailProvider {
	return &MockMailProvider{
		FailOps:    make(map[MailOp]bool),
		MaxLatency: 200 * time.Millisecond,
	}
}

func (c *MockMailProvider) Do(ctx context.Context, op MailOp, messageID string, _ map[string]any) error {
	if c.MaxLatency > 0 {
		// Имитируем задержку 10мс..MaxLatency
		latency := 10*time.Millisecond + time.Duration(rand.Int63n(int64(c.MaxLatency)))
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailOps[op] {
		return fmt.Errorf("mail provider error: operation %s unavailable", op)
	}

	c.calls = append(c.calls, MockCall{Op: op, MessageID: messageID})
	return nil
}

// Calls — копия журнала вызовов (для ассертов в тестах).
func (c *MockMailProvider) Calls() []MockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MockCall, len(c.calls))
	copy(out, c.calls)
	return out
}
