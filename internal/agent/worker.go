package agent

/*
Файл worker.go реализует жизненный цикл одного агента и его polling-цикл.

Машина состояний: idle -> running -> {paused <-> running} -> idle,
running -> error при фатале цикла (панике вне пер-письменной изоляции).

Остановка мягкая и eventual: Stop() сбрасывает флаг active, цикл замечает
его между письмами и между итерациями. Текущее письмо дорабатывается,
новая пачка не забирается. Hard-kill зависшего вызова нет — таймауты
обязан держать исполнитель.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/actionlog"
	"github.com/avealis/inboxpilot/internal/approval"
	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/events"
	"github.com/avealis/inboxpilot/internal/executor"
	"github.com/avealis/inboxpilot/internal/mailbox"
	"github.com/avealis/inboxpilot/internal/pipeline"
	"github.com/avealis/inboxpilot/internal/rules"
)

// Deps — коллабораторы воркера. Все границы узкие (§ интерфейсы),
// воркер не знает ни про Postgres, ни про Graph API.
type Deps struct {
	Source    mailbox.Source
	Pipeline  *pipeline.Pipeline
	Evaluator *rules.Evaluator
	Executor  *executor.Registry
	Approvals *approval.Service
	Events    *events.Bus
	ActionLog actionlog.Logger
	Metrics   *Metrics
	Logger    *zap.Logger
}

type Worker struct {
	cfg     atomic.Pointer[domain.AgentConfig] // hot-swap снапшот конфигурации
	metrics *domain.AgentMetrics
	deps    Deps
	logger  *zap.Logger

	mu     sync.Mutex
	state  domain.AgentState
	active atomic.Bool
	stopCh chan struct{} // будит сон цикла при Stop()
}

func NewWorker(cfg domain.AgentConfig, deps Deps) *Worker {
	cfg = cfg.Normalize()
	w := &Worker{
		metrics: &domain.AgentMetrics{},
		deps:    deps,
		logger:  deps.Logger.With(zap.String("mod", "agent"), zap.String("agent_id", cfg.ID)),
		state:   domain.StateIdle,
	}
	w.cfg.Store(&cfg)
	return w
}

// Config — текущий снапшот конфигурации.
func (w *Worker) Config() domain.AgentConfig {
	return *w.cfg.Load()
}

// ApplyConfig горячо подменяет снапшот. Цикл увидит новую версию на
// следующей итерации, рестарт не нужен. Частично примененных апдейтов
// не бывает — подмена атомарная.
func (w *Worker) ApplyConfig(cfg domain.AgentConfig) {
	cfg = cfg.Normalize()
	w.cfg.Store(&cfg)
	w.deps.Events.Emit(domain.EventConfigUpdated, cfg.ID, cfg.UserID, map[string]any{
		"autonomy_level": string(cfg.Autonomy),
		"rules":          len(cfg.Rules),
	})
}

func (w *Worker) State() domain.AgentState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Metrics() *domain.AgentMetrics {
	return w.metrics
}

// Status — снапшот для контрол-плейна.
func (w *Worker) Status() domain.AgentStatus {
	cfg := w.Config()
	return domain.AgentStatus{
		ID:       cfg.ID,
		Name:     cfg.Name,
		State:    w.State(),
		Autonomy: cfg.Autonomy,
		Metrics:  w.metrics.Snapshot(time.Now()),
	}
}

func (w *Worker) setState(s domain.AgentState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.deps.Metrics.AgentState.WithLabelValues(w.Config().ID).Set(stateValue(string(s)))
}

// Start переводит воркера в running и запускает polling-цикл фоновой
// горутиной (вызывающий ее не ждет). Повторный Start работающего воркера —
// ошибка. Start из состояния error — штатный путь восстановления.
func (w *Worker) Start(ctx context.Context) error {
	if !w.active.CompareAndSwap(false, true) {
		return domain.ErrAgentAlreadyRuns
	}

	w.mu.Lock()
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.metrics.MarkStarted(time.Now())
	w.setState(domain.StateRunning)

	cfg := w.Config()
	w.deps.Events.Emit(domain.EventAgentStarted, cfg.ID, cfg.UserID, nil)
	w.logger.Info("agent started",
		zap.String("autonomy", string(cfg.Autonomy)),
		zap.Duration("interval", cfg.CheckInterval))

	go w.run(ctx, stopCh)
	return nil
}

// Stop сбрасывает active и сразу показывает idle. Цикл дорабатывает текущее
// письмо и выходит — принудительной отмены нет.
func (w *Worker) Stop() {
	if !w.active.CompareAndSwap(true, false) {
		return
	}

	w.mu.Lock()
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	w.mu.Unlock()

	w.setState(domain.StateIdle)
	cfg := w.Config()
	w.deps.Events.Emit(domain.EventAgentStopped, cfg.ID, cfg.UserID, nil)
	w.logger.Info("agent stopped")
}

// Pause приостанавливает разбор, не трогая флаг active: цикл продолжает
// просыпаться по интервалу и тут же засыпает обратно. Метрики не сбрасываются.
func (w *Worker) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active.Load() || w.state != domain.StateRunning {
		return domain.ErrAgentNotRunning
	}
	w.state = domain.StatePaused
	w.deps.Metrics.AgentState.WithLabelValues(w.Config().ID).Set(stateValue("paused"))

	cfg := w.Config()
	w.deps.Events.Emit(domain.EventAgentPaused, cfg.ID, cfg.UserID, nil)
	return nil
}

// Resume возвращает паузу в running; следующий плановый poll продолжит
// с того места, где остановились (уже обработанные письма не трогаются).
func (w *Worker) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active.Load() || w.state != domain.StatePaused {
		return domain.ErrAgentNotRunning
	}
	w.state = domain.StateRunning
	w.deps.Metrics.AgentState.WithLabelValues(w.Config().ID).Set(stateValue("running"))

	cfg := w.Config()
	w.deps.Events.Emit(domain.EventAgentResumed, cfg.ID, cfg.UserID, nil)
	return nil
}

// run — polling-цикл. Живет, пока active; паника вне пер-письменной
// изоляции — фатал: состояние error, терминальное до внешнего Start().
func (w *Worker) run(ctx context.Context, stopCh <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			w.active.Store(false)
			w.setState(domain.StateError)
			w.deps.Metrics.ErrorsTotal.WithLabelValues("fatal").Inc()

			cfg := w.Config()
			w.deps.Events.Emit(domain.EventAgentError, cfg.ID, cfg.UserID, map[string]any{
				"panic": toString(r),
			})
			w.logger.Error("fatal loop error, agent halted", zap.Any("panic", r))
		}
	}()

	for w.active.Load() {
		cfg := w.Config() // свежий снапшот на каждую итерацию

		if w.State() != domain.StatePaused {
			w.iterate(ctx, cfg)
		}

		select {
		case <-time.After(cfg.CheckInterval):
		case <-stopCh:
			return
		case <-ctx.Done():
			// Процесс гасится: цикл завершается, статус выставит Stop()
			return
		}
	}
}

// iterate — одна пачка. Ошибка одного письма не прерывает остальные.
func (w *Worker) iterate(ctx context.Context, cfg domain.AgentConfig) {
	items, err := w.deps.Source.Next(ctx, cfg.BatchSize)
	if err != nil {
		w.deps.Metrics.ErrorsTotal.WithLabelValues("fetch").Inc()
		w.logger.Warn("mailbox fetch failed", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}

	// pending = размер пачки, списываем по мере завершения писем.
	// Письмо, ушедшее на апрув, остается в pending до резолюции.
	w.metrics.Pending.Add(int64(len(items)))
	w.deps.Metrics.PendingItems.WithLabelValues(cfg.ID).Set(float64(w.metrics.Pending.Load()))

	for _, item := range items {
		if !w.active.Load() {
			// Stop пришел посреди пачки: недообработанные письма вернутся
			// в следующей жизни агента
			w.metrics.Pending.Add(-int64(1))
			continue
		}
		w.processItem(ctx, cfg, item)
	}

	w.deps.Metrics.PendingItems.WithLabelValues(cfg.ID).Set(float64(w.metrics.Pending.Load()))
}

// processItem — пер-письменная изоляция: и ошибки, и паники бизнес-логики
// гасятся здесь и конвертируются в failed-метрику.
func (w *Worker) processItem(ctx context.Context, cfg domain.AgentConfig, item domain.MailItem) {
	start := time.Now()
	outcome := actionlog.OutcomeFailed
	w.metrics.Processed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			w.metrics.Failed.Add(1)
			w.metrics.Pending.Add(-1)
			w.deps.Metrics.ErrorsTotal.WithLabelValues("item_panic").Inc()
			w.logger.Error("item processing panicked",
				zap.String("item_id", item.ID), zap.Any("panic", r))
		}
		w.deps.Metrics.ItemDuration.WithLabelValues(cfg.ID, outcome).
			Observe(time.Since(start).Seconds())
	}()

	// 1. Решение: пайплайн тотален, Decision будет всегда
	decision := w.deps.Pipeline.Decide(ctx, cfg.ID, item)

	// 2. Политика автономности
	verdict := w.deps.Evaluator.Evaluate(cfg.Autonomy, cfg.Rules, decision)

	entry := actionlog.FromDecision(cfg.ID, cfg.UserID, item, decision, "")
	w.deps.Metrics.ItemsTotal.WithLabelValues(cfg.ID, decision.Action).Inc()

	switch {
	case verdict.Block:
		outcome = actionlog.OutcomeHeld
		created, err := w.deps.Approvals.Request(ctx, cfg.ID, cfg.UserID, item, decision)
		if err != nil {
			outcome = actionlog.OutcomeFailed
			w.metrics.Failed.Add(1)
			w.metrics.Pending.Add(-1)
			w.deps.Metrics.ErrorsTotal.WithLabelValues("approval").Inc()
			w.logger.Warn("approval request failed",
				zap.String("item_id", item.ID), zap.Error(err))
		} else if !created {
			// Дубликат: PENDING уже есть, письмо в pending не задваиваем
			w.metrics.Pending.Add(-1)
		}
		// held-письмо остается в pending до резолюции оператором

	default: // proceed (в т.ч. notify)
		if verdict.Notify {
			w.deps.Events.Emit(domain.EventNotification, cfg.ID, cfg.UserID, map[string]any{
				"item_id":   item.ID,
				"action":    decision.Action,
				"condition": verdict.Rule.Condition,
			})
		}

		if err := w.deps.Executor.Execute(ctx, item, decision); err != nil {
			outcome = actionlog.OutcomeFailed
			entry.Error = err.Error()
			w.metrics.Failed.Add(1)
			w.deps.Metrics.ErrorsTotal.WithLabelValues("execution").Inc()
			w.deps.Events.Emit(domain.EventItemFailed, cfg.ID, cfg.UserID, map[string]any{
				"item_id": item.ID,
				"error":   err.Error(),
			})
		} else {
			outcome = actionlog.OutcomeExecuted
			if verdict.Notify {
				outcome = actionlog.OutcomeNotified
			}
			w.metrics.Succeeded.Add(1)
			w.deps.Events.Emit(domain.EventItemProcessed, cfg.ID, cfg.UserID, map[string]any{
				"item_id": item.ID,
				"action":  decision.Action,
			})
		}
		w.metrics.Pending.Add(-1)
	}

	entry.Outcome = outcome
	entry.DurationMs = time.Since(start).Milliseconds()
	w.deps.ActionLog.Log(entry)

	// 3. Подтверждаем обработку независимо от исхода: held-письма
	// дедуплицируются на стороне approval store
	if err := w.deps.Source.MarkProcessed(ctx, item.ID); err != nil {
		w.logger.Warn("mark processed failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "panic"
}
