package domain

import "time"

// EventType — закрытый набор типов событий ядра. Каждый тип несет
// фиксированную форму payload, подписчики матчатся по типу.
type EventType string

const (
	EventAgentStarted      EventType = "agent_started"
	EventAgentStopped      EventType = "agent_stopped"
	EventAgentPaused       EventType = "agent_paused"
	EventAgentResumed      EventType = "agent_resumed"
	EventAgentError        EventType = "agent_error"
	EventItemProcessed     EventType = "item_processed"
	EventItemFailed        EventType = "item_failed"
	EventNotification      EventType = "notification"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalResolved  EventType = "approval_resolved"
	EventConfigUpdated     EventType = "config_updated"
)

// Event — fire-and-forget уведомление жизненного цикла. Ядро само события
// не персистит: локальная шина раздает их подписчикам, внешний broadcaster
// доставляет best-effort, высокоценные типы дублируются в action log.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	AgentID   string         `json:"agent_id"`
	UserID    string         `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	// Origin — ID процесса, породившего событие. Локальные события ходят по
	// шине с пустым Origin; штамп ставит бродкастер перед публикацией наружу.
	// Зеркальные события чужих реплик приходят в шину уже со штампом — по нему
	// форвардер отличает свое от чужого и не пересылает чужое повторно.
	Origin string `json:"origin,omitempty"`
}
