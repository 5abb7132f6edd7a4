package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял разбор одного письма (включая исполнение)
	ItemDuration *prometheus.HistogramVec

	// Traffic: сколько писем прошло через пайплайн
	ItemsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorsTotal *prometheus.CounterVec

	// Текущее состояние воркеров (0 - idle, 1 - running, 2 - paused, 3 - error)
	AgentState *prometheus.GaugeVec

	// Письма, ждущие исполнения или апрува
	PendingItems *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ItemDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inboxpilot_item_duration_seconds",
			Help:    "Histogram of per-item processing latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"agent_id", "outcome"}),

		ItemsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "inboxpilot_items_total",
			Help: "Total number of processed mail items.",
		}, []string{"agent_id", "action"}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "inboxpilot_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: fetch, execution, approval, fatal

		AgentState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "inboxpilot_agent_state",
			Help: "Current worker state (0=idle, 1=running, 2=paused, 3=error).",
		}, []string{"agent_id"}),

		PendingItems: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "inboxpilot_pending_items",
			Help: "Items held for execution or approval per agent.",
		}, []string{"agent_id"}),
	}
}

func stateValue(s string) float64 {
	switch s {
	case "running":
		return 1
	case "paused":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}
