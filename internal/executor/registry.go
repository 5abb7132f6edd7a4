package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Handler исполняет одно одобренное действие над письмом.
// Ошибки возвращаются как данные — наверх они не пробрасываются, а
// записываются в метрики/Approval.
type Handler func(ctx context.Context, item domain.MailItem, d domain.Decision) error

// Registry — диспетчер по закрытому множеству действий. Вместо каскада
// switch-on-string держим мапу action -> handler: неизвестный тег дает
// типизированную ошибку ErrUnsupportedAction, а не тихий no-op.
type Registry struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.Named("executor"),
	}
}

func (r *Registry) Register(action string, h Handler) {
	r.handlers[action] = h
}

// Supported — список для валидации и Console API.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	return out
}

// Execute диспетчеризует решение. Регистрация завершается до старта агентов,
// поэтому мапа читается без блокировок.
func (r *Registry) Execute(ctx context.Context, item domain.MailItem, d domain.Decision) error {
	h, ok := r.handlers[d.Action]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedAction, d.Action)
	}

	if err := h(ctx, item, d); err != nil {
		r.logger.Warn("action execution failed",
			zap.String("action", d.Action),
			zap.String("item_id", item.ID),
			zap.Error(err))
		return err
	}

	r.logger.Debug("action executed",
		zap.String("action", d.Action),
		zap.String("item_id", item.ID))
	return nil
}
