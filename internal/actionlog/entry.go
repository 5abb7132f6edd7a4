package actionlog

import (
	"time"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Итог обработки одного письма для журнала действий.
const (
	OutcomeExecuted = "EXECUTED"
	OutcomeHeld     = "HELD" // ушло в approval queue
	OutcomeFailed   = "FAILED"
	OutcomeNotified = "NOTIFIED" // исполнено + notify-правило
	OutcomeEvent    = "EVENT"    // персистентная копия высокоценного события
)

// Entry — одна запись журнала действий агента. Decision встраивается сюда
// целиком: напрямую решения не персистятся.
type Entry struct {
	ID      string `json:"id"`       // UUID записи
	AgentID string `json:"agent_id"` // Кто делал
	UserID  string `json:"user_id"`
	ItemID  string `json:"item_id"` // Над каким письмом

	Action     string  `json:"action"` // Что решили сделать
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	// Результат
	Outcome    string    `json:"outcome"` // EXECUTED / HELD / FAILED / NOTIFIED / EVENT
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время обработки
}

// FromDecision собирает запись из решения и исхода.
func FromDecision(agentID, userID string, item domain.MailItem, d domain.Decision, outcome string) Entry {
	return Entry{
		AgentID:    agentID,
		UserID:     userID,
		ItemID:     item.ID,
		Action:     d.Action,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Outcome:    outcome,
	}
}
