package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/actionlog"
	"github.com/avealis/inboxpilot/internal/approval"
	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/events"
	"github.com/avealis/inboxpilot/internal/executor"
	"github.com/avealis/inboxpilot/internal/pipeline"
	"github.com/avealis/inboxpilot/internal/rules"
)

type workerFixture struct {
	worker    *Worker
	source    *mailboxStub
	provider  *executor.MockMailProvider
	approvals *approval.MemoryStore
	bus       *events.Bus
	logs      *actionlog.MemoryStorage
}

// mailboxStub — управляемая очередь: в отличие от боевых источников умеет
// возвращать письмо обратно (для проверки дедупликации held-дубликатов).
type mailboxStub struct {
	mu        sync.Mutex
	items     []domain.MailItem
	processed map[string]bool
}

func newMailboxStub(items ...domain.MailItem) *mailboxStub {
	return &mailboxStub{items: items, processed: make(map[string]bool)}
}

func (s *mailboxStub) Next(_ context.Context, limit int) ([]domain.MailItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.MailItem, 0, limit)
	for _, it := range s.items {
		if s.processed[it.ID] {
			continue
		}
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *mailboxStub) MarkProcessed(_ context.Context, itemID string) error {
	s.mu.Lock()
	s.processed[itemID] = true
	s.mu.Unlock()
	return nil
}

func (s *mailboxStub) push(items ...domain.MailItem) {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
}

func (s *mailboxStub) requeue(itemID string) {
	s.mu.Lock()
	delete(s.processed, itemID)
	s.mu.Unlock()
}

func newWorkerFixture(t *testing.T, cfg domain.AgentConfig, items ...domain.MailItem) *workerFixture {
	t.Helper()

	logger := zap.NewNop()
	provider := executor.NewMockMailProvider()
	provider.MaxLatency = 0
	registry := executor.NewRegistry(logger)
	executor.RegisterMailHandlers(registry, provider)

	bus := events.NewBus()
	store := approval.NewMemoryStore()
	logs := actionlog.NewMemoryStorage()
	writer := actionlog.NewWriter(logs, 10, 10*time.Millisecond, logger)
	writer.Start()
	t.Cleanup(writer.Stop)

	source := newMailboxStub(items...)
	w := NewWorker(cfg, Deps{
		Source:    source,
		Pipeline:  pipeline.New(nil, nil, time.Second, logger),
		Evaluator: rules.NewEvaluator(logger),
		Executor:  registry,
		Approvals: approval.NewService(store, registry, bus, logger),
		Events:    bus,
		ActionLog: writer,
		Metrics:   NewMetrics(nil),
		Logger:    logger,
	})

	return &workerFixture{
		worker:    w,
		source:    source,
		provider:  provider,
		approvals: store,
		bus:       bus,
		logs:      logs,
	}
}

func baseConfig(autonomy domain.AutonomyLevel, rules []domain.Rule) domain.AgentConfig {
	return domain.AgentConfig{
		ID:            "a1",
		UserID:        "u1",
		Name:          "test agent",
		Autonomy:      autonomy,
		CheckInterval: 20 * time.Millisecond,
		BatchSize:     10,
		Rules:         rules,
	}
}

func TestWorkerSupervisedHoldsEverything(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomySupervised, nil),
		domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter},
		domain.MailItem{ID: "m2", Category: domain.CategoryNotification},
	)

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Processed.Load() == 2
	}, time.Second, 10*time.Millisecond)

	// Оба письма в очереди апрува, исполнитель не вызывался
	pending, err := fx.approvals.ListPending(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Empty(t, fx.provider.Calls())

	// Письма остаются в pending до резолюции оператором
	assert.Equal(t, int64(2), fx.worker.Metrics().Pending.Load())
}

func TestWorkerFullAutonomyExecutes(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomyFull, nil),
		domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter},
	)

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Succeeded.Load() == 1
	}, time.Second, 10*time.Millisecond)

	calls := fx.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, executor.OpArchive, calls[0].Op)

	pending, _ := fx.approvals.ListPending(context.Background(), "u1")
	assert.Empty(t, pending)
	assert.Equal(t, int64(0), fx.worker.Metrics().Pending.Load())
}

func TestWorkerSemiAutonomousRuleBlocks(t *testing.T) {
	ruleset := []domain.Rule{
		{Condition: "confidence_below", Threshold: 0.9, Action: domain.RuleBlock},
	}
	fx := newWorkerFixture(t, baseConfig(domain.AutonomySemi, ruleset),
		domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter}, // archive, 0.85 < 0.9
	)

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	assert.Eventually(t, func() bool {
		pending, _ := fx.approvals.ListPending(context.Background(), "u1")
		return len(pending) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, fx.provider.Calls())
}

func TestWorkerNotifyRuleExecutesAndEmits(t *testing.T) {
	ruleset := []domain.Rule{
		{Condition: "always", Action: domain.RuleNotify},
	}
	fx := newWorkerFixture(t, baseConfig(domain.AutonomySemi, ruleset),
		domain.MailItem{ID: "m1", Category: domain.CategoryNotification},
	)

	_, ch := fx.bus.Subscribe(32)

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Succeeded.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// Действие исполнено И отправлено notification-событие
	require.Len(t, fx.provider.Calls(), 1)

	var sawNotification bool
	deadline := time.After(500 * time.Millisecond)
	for !sawNotification {
		select {
		case ev := <-ch:
			if ev.Type == domain.EventNotification {
				sawNotification = true
			}
		case <-deadline:
			t.Fatal("notification event not observed")
		}
	}
}

func TestWorkerLifecycle(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomyFull, nil))

	assert.Equal(t, domain.StateIdle, fx.worker.State())

	// Pause/Resume до старта — ошибка
	assert.ErrorIs(t, fx.worker.Pause(), domain.ErrAgentNotRunning)
	assert.ErrorIs(t, fx.worker.Resume(), domain.ErrAgentNotRunning)

	require.NoError(t, fx.worker.Start(context.Background()))
	assert.Equal(t, domain.StateRunning, fx.worker.State())

	// Повторный старт работающего — ошибка
	assert.ErrorIs(t, fx.worker.Start(context.Background()), domain.ErrAgentAlreadyRuns)

	require.NoError(t, fx.worker.Pause())
	assert.Equal(t, domain.StatePaused, fx.worker.State())

	// Resume из паузы
	require.NoError(t, fx.worker.Resume())
	assert.Equal(t, domain.StateRunning, fx.worker.State())

	fx.worker.Stop()
	assert.Equal(t, domain.StateIdle, fx.worker.State())

	// Рестарт после остановки разрешен, метрики не сбрасываются
	require.NoError(t, fx.worker.Start(context.Background()))
	fx.worker.Stop()
}

// Stop мягкий: текущее письмо дорабатывается, но новый батч после остановки
// не выбирается и счетчики больше не растут.
func TestWorkerStopIsEventuallyConsistent(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomyFull, nil),
		domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter},
	)

	require.NoError(t, fx.worker.Start(context.Background()))
	require.Eventually(t, func() bool {
		return fx.worker.Metrics().Processed.Load() == 1
	}, time.Second, 10*time.Millisecond)

	fx.worker.Stop()
	assert.Equal(t, domain.StateIdle, fx.worker.State())

	// Письмо приходит уже после остановки
	fx.source.push(domain.MailItem{ID: "m2", Category: domain.CategoryNewsletter})

	// Интервал опроса 20ms: за 200ms остановленный цикл успел бы не раз
	assert.Never(t, func() bool {
		return fx.worker.Metrics().Processed.Load() > 1
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Len(t, fx.provider.Calls(), 1)
}

func TestWorkerPauseStopsProcessing(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomyFull, nil))

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()
	require.NoError(t, fx.worker.Pause())

	// Письмо приходит уже на паузе
	fx.source.push(domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), fx.worker.Metrics().Processed.Load())

	// После resume разбор продолжается
	require.NoError(t, fx.worker.Resume())
	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Processed.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerHotConfigSwap(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomySupervised, nil))

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	// Переключаем на автопилот без рестарта
	cfg := fx.worker.Config()
	cfg.Autonomy = domain.AutonomyFull
	fx.worker.ApplyConfig(cfg)

	fx.source.push(domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter})

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Succeeded.Load() == 1
	}, time.Second, 10*time.Millisecond)

	pending, _ := fx.approvals.ListPending(context.Background(), "u1")
	assert.Empty(t, pending, "new autonomy level must apply without restart")
	assert.Equal(t, domain.AutonomyFull, fx.worker.Config().Autonomy)
}

func TestWorkerDuplicateHeldItemNotDoubleCounted(t *testing.T) {
	fx := newWorkerFixture(t, baseConfig(domain.AutonomySupervised, nil),
		domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter},
	)

	require.NoError(t, fx.worker.Start(context.Background()))
	defer fx.worker.Stop()

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Processed.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	// То же письмо приходит снова (например, после рестарта очереди)
	fx.source.requeue("m1")

	assert.Eventually(t, func() bool {
		return fx.worker.Metrics().Processed.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	// Дубликат подавлен стором: заявка одна, pending не задвоен
	pending, _ := fx.approvals.ListPending(context.Background(), "u1")
	assert.Len(t, pending, 1)
	assert.Equal(t, int64(1), fx.worker.Metrics().Pending.Load())
}
