package mailbox

import (
	"context"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Source — очередь писем одного агента. Next отдает ограниченную пачку в
// стабильном порядке и не имеет побочных эффектов; подтверждение обработки —
// отдельный вызов MarkProcessed.
type Source interface {
	Next(ctx context.Context, limit int) ([]domain.MailItem, error)
	MarkProcessed(ctx context.Context, itemID string) error
}
