package domain

import (
	"errors"
	"sync/atomic"
	"time"
)

// AutonomyLevel — ручка оператора: сколько человеческого контроля применяется
// к решениям агента.
type AutonomyLevel string

const (
	// AutonomySupervised — каждое решение уходит на апрув (HITL), правила не проверяются
	AutonomySupervised AutonomyLevel = "supervised"
	// AutonomySemi — решения проверяются по списку правил, первое совпадение выигрывает
	AutonomySemi AutonomyLevel = "semi-autonomous"
	// AutonomyFull — полный автопилот, правила не проверяются
	AutonomyFull AutonomyLevel = "fully-autonomous"
)

// AgentState — состояния жизненного цикла воркера.
// idle -> running -> {paused <-> running} -> idle, running -> error при фатале.
type AgentState string

const (
	StateIdle    AgentState = "idle"
	StateRunning AgentState = "running"
	StatePaused  AgentState = "paused"
	StateError   AgentState = "error"
)

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrAgentAlreadyRuns  = errors.New("agent already running")
	ErrAgentNotRunning   = errors.New("agent is not running")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// RuleAction — что делать при совпадении условия правила.
type RuleAction string

const (
	RuleApprove RuleAction = "approve" // пропустить на исполнение
	RuleNotify  RuleAction = "notify"  // исполнить, но отправить уведомление
	RuleBlock   RuleAction = "block"   // остановить и создать Approval
)

// Rule — точечный override для semi-autonomous режима.
// Condition — именованный предикат ("confidence_below", "always",
// либо имя boolean-флага в контексте решения).
type Rule struct {
	Condition string     `json:"condition"`
	Threshold float64    `json:"threshold,omitempty"`
	Action    RuleAction `json:"action"`
}

// AgentConfig — иммутабельный снапшот конфигурации одного воркера.
// Горячее обновление выполняется подменой снапшота целиком (atomic swap),
// а не мутацией полей — цикл агента всегда видит либо старую, либо новую
// версию, но никогда частичную.
type AgentConfig struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Name          string        `json:"name"`
	Autonomy      AutonomyLevel `json:"autonomy_level"`
	CheckInterval time.Duration `json:"check_interval"`
	BatchSize     int           `json:"batch_size"`
	Rules         []Rule        `json:"rules"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize проставляет безопасные дефолты вместо нулевых значений.
func (c AgentConfig) Normalize() AgentConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Autonomy == "" {
		c.Autonomy = AutonomySupervised
	}
	return c
}

// AgentMetrics — счетчики одного запуска процесса. Атомарные, т.к. цикл
// агента и читатели статусов живут в разных горутинах.
// Сбрасываются только рестартом процесса, pause/resume их не трогают.
type AgentMetrics struct {
	Processed atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Pending   atomic.Int64

	startedAt atomic.Int64 // unix nano, 0 = ни разу не стартовал
}

// MarkStarted фиксирует таймстемп первого запуска (для uptime).
func (m *AgentMetrics) MarkStarted(t time.Time) {
	m.startedAt.CompareAndSwap(0, t.UnixNano())
}

func (m *AgentMetrics) Uptime(now time.Time) time.Duration {
	started := m.startedAt.Load()
	if started == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, started))
}

// MetricsSnapshot — сериализуемый срез метрик для Console API.
type MetricsSnapshot struct {
	Processed int64         `json:"processed"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Pending   int64         `json:"pending"`
	Uptime    time.Duration `json:"uptime_ns"`
}

func (m *AgentMetrics) Snapshot(now time.Time) MetricsSnapshot {
	return MetricsSnapshot{
		Processed: m.Processed.Load(),
		Succeeded: m.Succeeded.Load(),
		Failed:    m.Failed.Load(),
		Pending:   m.Pending.Load(),
		Uptime:    m.Uptime(now),
	}
}

// AgentStatus — снапшот состояния воркера для контрол-плейна.
type AgentStatus struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	State    AgentState      `json:"state"`
	Autonomy AutonomyLevel   `json:"autonomy_level"`
	Metrics  MetricsSnapshot `json:"metrics"`
}
