package domain

// Известные действия исполнителя. Закрытое множество: диспетчеризация идет
// по зарегистрированным хендлерам, неизвестный тег — типизированная ошибка,
// а не тихий no-op.
const (
	ActionGenerateReply = "generate_reply"
	ActionSendReply     = "send_reply"
	ActionArchive       = "archive"
	ActionFlagForReview = "flag_for_review"
	ActionMarkRead      = "mark_read"
)

// Decision — иммутабельный результат классификации одного письма.
// Создается пайплайном, дальше только читается (встраивается в Approval
// или в запись action log, напрямую не персистится).
type Decision struct {
	Action           string         `json:"action"`
	Confidence       float64        `json:"confidence"` // [0,1]
	Reasoning        string         `json:"reasoning"`
	RequiresApproval bool           `json:"requires_approval"` // рекомендательный флаг классификатора
	Context          map[string]any `json:"context,omitempty"`
}

// Flag достает boolean-флаг из контекста решения (для условий правил).
func (d Decision) Flag(name string) bool {
	if d.Context == nil {
		return false
	}
	v, ok := d.Context[name].(bool)
	return ok && v
}

// Valid — три обязательных поля: action, confidence в [0,1], непустой reasoning.
// Все, что не прошло проверку, пайплайн молча отбрасывает и уходит на fallback.
func (d Decision) Valid() bool {
	if d.Action == "" || d.Reasoning == "" {
		return false
	}
	return d.Confidence >= 0 && d.Confidence <= 1
}

// DefaultDecision — последний ярус fallback-цепочки. Пайплайн никогда не
// возвращает ошибку: если ни informed, ни deterministic ярус не сработали,
// письмо помечается на ручной разбор.
func DefaultDecision() Decision {
	return Decision{
		Action:           ActionFlagForReview,
		Confidence:       0.5,
		Reasoning:        "no classifier produced a confident result, flagged for manual review",
		RequiresApproval: true,
	}
}
