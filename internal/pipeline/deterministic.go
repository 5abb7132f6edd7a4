package pipeline

import "github.com/avealis/inboxpilot/internal/domain"

// таблица второго яруса: известная категория -> фиксированная тройка
// (action, confidence, reasoning). Никаких внешних вызовов.
var categoryTable = map[domain.MailCategory]domain.Decision{
	domain.CategoryNewsletter: {
		Action:     domain.ActionArchive,
		Confidence: 0.85,
		Reasoning:  "newsletter detected by category heuristics, safe to archive",
	},
	domain.CategoryNotification: {
		Action:     domain.ActionMarkRead,
		Confidence: 0.8,
		Reasoning:  "automated notification, marking as read",
	},
	domain.CategorySpamLike: {
		Action:           domain.ActionFlagForReview,
		Confidence:       0.7,
		Reasoning:        "spam-like signals present, flagging for review",
		RequiresApproval: true,
	},
	domain.CategoryPersonal: {
		Action:     domain.ActionGenerateReply,
		Confidence: 0.75,
		Reasoning:  "personal correspondence, drafting a reply",
	},
	domain.CategoryFinancial: {
		Action:           domain.ActionFlagForReview,
		Confidence:       0.9,
		Reasoning:        "financial content, held for human review",
		RequiresApproval: true,
		Context:          map[string]any{"financial_content": true},
	},
}

// Deterministic — второй ярус fallback-цепочки. Возвращает false для
// неизвестной категории (дальше сработает DefaultDecision).
func Deterministic(item domain.MailItem) (domain.Decision, bool) {
	d, ok := categoryTable[item.Category]
	return d, ok
}
