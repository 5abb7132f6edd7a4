package executor

import (
	"context"

	"github.com/avealis/inboxpilot/internal/domain"
)

// RegisterMailHandlers привязывает закрытый набор действий к провайдеру.
// Единственное место, где строковый тег решения встречается с операцией
// почтового бэкенда.
func RegisterMailHandlers(r *Registry, provider MailProvider) {
	r.Register(domain.ActionGenerateReply, func(ctx context.Context, item domain.MailItem, d domain.Decision) error {
		return provider.Do(ctx, OpDraftReply, item.ID, map[string]any{
			"reasoning": d.Reasoning,
			"context":   d.Context,
		})
	})

	r.Register(domain.ActionSendReply, func(ctx context.Context, item domain.MailItem, d domain.Decision) error {
		return provider.Do(ctx, OpSendReply, item.ID, map[string]any{
			"reasoning": d.Reasoning,
		})
	})

	r.Register(domain.ActionArchive, func(ctx context.Context, item domain.MailItem, _ domain.Decision) error {
		return provider.Do(ctx, OpArchive, item.ID, nil)
	})

	r.Register(domain.ActionFlagForReview, func(ctx context.Context, item domain.MailItem, d domain.Decision) error {
		return provider.Do(ctx, OpFlag, item.ID, map[string]any{
			"reasoning": d.Reasoning,
		})
	})

	r.Register(domain.ActionMarkRead, func(ctx context.Context, item domain.MailItem, _ domain.Decision) error {
		return provider.Do(ctx, OpMarkRead, item.ID, nil)
	})
}
