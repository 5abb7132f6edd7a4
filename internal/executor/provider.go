package executor

import (
	"context"
	"fmt"
	"time"
)

// MailOp — операции, которые умеет внешний почтовый провайдер.
type MailOp string

const (
	OpDraftReply MailOp = "draft_reply"
	OpSendReply  MailOp = "send_reply"
	OpArchive    MailOp = "archive"
	OpFlag       MailOp = "flag"
	OpMarkRead   MailOp = "mark_read"
)

// MailProvider — граница с реальным почтовым бэкендом (Graph API и т.п.).
// Реализация обязана соблюдать собственные таймауты: ядро hard-kill
// зависшего вызова не делает.
type MailProvider interface {
	Do(ctx context.Context, op MailOp, messageID string, payload map[string]any) error
}

type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
