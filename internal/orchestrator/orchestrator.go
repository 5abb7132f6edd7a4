package orchestrator

/*
Оркестратор — контрол-плейн поверх воркеров: один Worker на AgentConfig,
групповые и точечные операции жизненного цикла, горячее обновление
конфигураций и прокси к approval-воркфлоу.

Он же разруливает событийную обвязку: подписывается на локальную шину
один раз и пересылает высокоценные события наружу (Redis broadcast)
и в журнал действий.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/actionlog"
	"github.com/avealis/inboxpilot/internal/agent"
	"github.com/avealis/inboxpilot/internal/approval"
	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/events"
	"github.com/avealis/inboxpilot/internal/mailbox"
)

// ConfigStore — персистенция конфигураций агентов.
type ConfigStore interface {
	ListAgentConfigs(ctx context.Context) ([]domain.AgentConfig, error)
	GetAgentConfig(ctx context.Context, id string) (domain.AgentConfig, error)
	SaveAgentConfig(ctx context.Context, cfg domain.AgentConfig) (domain.AgentConfig, error)
}

// Defaults — параметры сид-агента из конфигурации движка. Нулевые значения
// добьет domain.Normalize.
type Defaults struct {
	CheckInterval time.Duration
	BatchSize     int
}

// Типы событий, которые уходят за пределы процесса и в журнал.
// Рутинные item_processed остаются внутри: их объемы несовместимы
// с pub/sub-каналом для UI.
var highValue = map[domain.EventType]struct{}{
	domain.EventAgentError:        {},
	domain.EventNotification:      {},
	domain.EventApprovalRequested: {},
	domain.EventApprovalResolved:  {},
}

// SourceFactory выдает почтовый источник для конкретного агента
// (в Redis-режиме очереди пер-агентные). nil = общий источник из Deps.
type SourceFactory func(agentID string) mailbox.Source

type Orchestrator struct {
	configs     ConfigStore
	approvals   *approval.Service
	bus         *events.Bus
	broadcaster events.Broadcaster
	actionLog   actionlog.Logger
	workerDeps  agent.Deps
	sources     SourceFactory
	defaults    Defaults
	logger      *zap.Logger

	mu      sync.RWMutex
	workers map[string]*agent.Worker

	forwardSub  string
	forwardDone chan struct{}
}

func New(configs ConfigStore, approvals *approval.Service, broadcaster events.Broadcaster, workerDeps agent.Deps, sources SourceFactory, defaults Defaults, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		configs:     configs,
		approvals:   approvals,
		bus:         workerDeps.Events,
		broadcaster: broadcaster,
		actionLog:   workerDeps.ActionLog,
		workerDeps:  workerDeps,
		sources:     sources,
		defaults:    defaults,
		logger:      logger.Named("orchestrator"),
		workers:     make(map[string]*agent.Worker),
	}
}

// Load читает конфигурации и регистрирует воркеров. Пустая база не ошибка:
// регистрируется один встроенный дефолтный агент, чтобы движок было чем
// пощупать сразу после первого запуска.
func (o *Orchestrator) Load(ctx context.Context) error {
	cfgs, err := o.configs.ListAgentConfigs(ctx)
	if err != nil {
		return err
	}
	if len(cfgs) == 0 {
		def := defaultAgentConfig(o.defaults)
		if def, err = o.configs.SaveAgentConfig(ctx, def); err != nil {
			return err
		}
		cfgs = append(cfgs, def)
		o.logger.Info("no agent configs found, seeded default", zap.String("agent_id", def.ID))
	}

	o.mu.Lock()
	for _, cfg := range cfgs {
		deps := o.workerDeps
		if o.sources != nil {
			deps.Source = o.sources(cfg.ID)
		}
		o.workers[cfg.ID] = agent.NewWorker(cfg, deps)
	}
	o.mu.Unlock()

	o.startForwarder()
	o.logger.Info("agents registered", zap.Int("count", len(cfgs)))
	return nil
}

// startForwarder — единственная подписка оркестратора на шину.
func (o *Orchestrator) startForwarder() {
	id, ch := o.bus.Subscribe(256)
	o.forwardSub = id
	o.forwardDone = make(chan struct{})

	go func() {
		defer close(o.forwardDone)
		for event := range ch {
			o.forward(event)
		}
	}()
}

func (o *Orchestrator) forward(event domain.Event) {
	if _, ok := highValue[event.Type]; !ok {
		return
	}
	// Зеркальное событие чужой реплики: его транслирует и журналирует
	// реплика-владелец, повторная пересылка дала бы эхо-петлю
	if event.Origin != "" {
		return
	}

	// Broadcast best-effort: ошибку транспорта глотает сам бродкастер
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	o.broadcaster.Broadcast(ctx, event)
	cancel()

	o.actionLog.Log(actionlog.Entry{
		ID:        event.ID,
		AgentID:   event.AgentID,
		UserID:    event.UserID,
		Action:    string(event.Type),
		Outcome:   actionlog.OutcomeEvent,
		Timestamp: event.Timestamp,
	})
}

func (o *Orchestrator) worker(agentID string) (*agent.Worker, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[agentID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return w, nil
}

// StartAll поднимает всех зарегистрированных агентов параллельно.
// Отказ одного не мешает остальным; первая ошибка возвращается наверх.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.mu.RLock()
	workers := make([]*agent.Worker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *agent.Worker) {
			defer wg.Done()
			if err := w.Start(ctx); err != nil {
				o.logger.Warn("agent start failed",
					zap.String("agent_id", w.Config().ID), zap.Error(err))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}

// StopAll мягко останавливает всех агентов и гасит форвардер событий.
func (o *Orchestrator) StopAll() {
	o.mu.RLock()
	for _, w := range o.workers {
		w.Stop()
	}
	o.mu.RUnlock()

	if o.forwardSub != "" {
		o.bus.Unsubscribe(o.forwardSub)
		<-o.forwardDone
		o.forwardSub = ""
	}
}

func (o *Orchestrator) StartAgent(ctx context.Context, agentID string) error {
	w, err := o.worker(agentID)
	if err != nil {
		return err
	}
	return w.Start(ctx)
}

func (o *Orchestrator) StopAgent(agentID string) error {
	w, err := o.worker(agentID)
	if err != nil {
		return err
	}
	w.Stop()
	return nil
}

func (o *Orchestrator) PauseAgent(agentID string) error {
	w, err := o.worker(agentID)
	if err != nil {
		return err
	}
	return w.Pause()
}

func (o *Orchestrator) ResumeAgent(agentID string) error {
	w, err := o.worker(agentID)
	if err != nil {
		return err
	}
	return w.Resume()
}

// UpdateAgentConfig: сначала персистим, потом горячо применяем. Если база
// отказала — у воркера остается старый снапшот, расхождения не возникает.
func (o *Orchestrator) UpdateAgentConfig(ctx context.Context, cfg domain.AgentConfig) (domain.AgentConfig, error) {
	w, err := o.worker(cfg.ID)
	if err != nil {
		return domain.AgentConfig{}, err
	}

	// Иммутабельные поля берем из персистентной записи, а не из запроса
	prev, err := o.configs.GetAgentConfig(ctx, cfg.ID)
	if err != nil {
		return domain.AgentConfig{}, err
	}
	cfg.UserID = prev.UserID
	cfg.CreatedAt = prev.CreatedAt
	cfg.UpdatedAt = time.Now()
	cfg = cfg.Normalize()

	stored, err := o.configs.SaveAgentConfig(ctx, cfg)
	if err != nil {
		return domain.AgentConfig{}, err
	}

	w.ApplyConfig(stored)
	o.logger.Info("agent config updated",
		zap.String("agent_id", stored.ID),
		zap.String("autonomy", string(stored.Autonomy)))
	return stored, nil
}

func (o *Orchestrator) AgentStatus(agentID string) (domain.AgentStatus, error) {
	w, err := o.worker(agentID)
	if err != nil {
		return domain.AgentStatus{}, err
	}
	return w.Status(), nil
}

func (o *Orchestrator) AgentStatuses() []domain.AgentStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]domain.AgentStatus, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, w.Status())
	}
	return out
}

// ApprovalQueue — PENDING-заявки пользователя, старые сверху.
func (o *Orchestrator) ApprovalQueue(ctx context.Context, userID string) ([]*domain.Approval, error) {
	return o.approvals.PendingForUser(ctx, userID)
}

func (o *Orchestrator) GetApproval(ctx context.Context, id string) (*domain.Approval, error) {
	return o.approvals.Get(ctx, id)
}

// ApproveAction резолвит заявку и списывает письмо из pending-счетчика
// его агента: held-письмо числилось там с момента блокировки.
func (o *Orchestrator) ApproveAction(ctx context.Context, approvalID, reviewerID, comment string) (*domain.Approval, error) {
	app, err := o.approvals.Approve(ctx, approvalID, reviewerID, comment)
	if err != nil {
		return nil, err
	}
	o.releasePending(app.AgentID)
	return app, nil
}

func (o *Orchestrator) RejectAction(ctx context.Context, approvalID, reviewerID, reason string) (*domain.Approval, error) {
	app, err := o.approvals.Reject(ctx, approvalID, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	o.releasePending(app.AgentID)
	return app, nil
}

func (o *Orchestrator) releasePending(agentID string) {
	w, err := o.worker(agentID)
	if err != nil {
		// Заявка от агента прошлой конфигурации — списывать нечего
		return
	}
	m := w.Metrics()
	if m.Pending.Load() > 0 {
		m.Pending.Add(-1)
	}
	o.workerDeps.Metrics.PendingItems.WithLabelValues(agentID).Set(float64(m.Pending.Load()))
}

func defaultAgentConfig(d Defaults) domain.AgentConfig {
	now := time.Now()
	return domain.AgentConfig{
		ID:       "default",
		UserID:   "default",
		Name:     "Inbox triage",
		Autonomy: domain.AutonomySupervised,
		Rules: []domain.Rule{
			{Condition: "confidence_below", Threshold: 0.8, Action: domain.RuleBlock},
			{Condition: "financial_content", Action: domain.RuleBlock},
			{Condition: "always", Action: domain.RuleNotify},
		},
		CheckInterval: d.CheckInterval,
		BatchSize:     d.BatchSize,
		CreatedAt:     now,
		UpdatedAt:     now,
	}.Normalize()
}
