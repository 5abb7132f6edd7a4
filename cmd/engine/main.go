package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avealis/inboxpilot/internal/actionlog"
	"github.com/avealis/inboxpilot/internal/agent"
	"github.com/avealis/inboxpilot/internal/approval"
	"github.com/avealis/inboxpilot/internal/console/handler"
	"github.com/avealis/inboxpilot/internal/console/server"
	"github.com/avealis/inboxpilot/internal/console/service"
	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/events"
	"github.com/avealis/inboxpilot/internal/executor"
	"github.com/avealis/inboxpilot/internal/infra"
	"github.com/avealis/inboxpilot/internal/infra/auth"
	"github.com/avealis/inboxpilot/internal/mailbox"
	"github.com/avealis/inboxpilot/internal/orchestrator"
	"github.com/avealis/inboxpilot/internal/pipeline"
	"github.com/avealis/inboxpilot/internal/repository/postgres"
	"github.com/avealis/inboxpilot/internal/rules"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Хранилище: Postgres при заданном URL, иначе local-режим (в памяти)
	var (
		pgStore       *postgres.Store
		configStore   orchestrator.ConfigStore
		approvalStore approval.Store
		logStorage    actionlog.Storage
		ctxProvider   pipeline.ContextProvider
		statsProvider handler.StatsProvider
		userRepo      service.AuthProvider
	)
	if cfg.Database.URL != "" {
		pgStore, err = postgres.NewStore(appCtx, cfg.Database)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()

		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := pgStore.Ping(pingCtx); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		pingCancel()
		if err := pgStore.EnsureSchema(appCtx); err != nil {
			logger.Fatal("schema init failed", zap.Error(err))
		}

		configStore = pgStore
		approvalStore = pgStore
		logStorage = pgStore
		ctxProvider = pgStore
		statsProvider = pgStore
		userRepo = pgStore
	} else {
		logger.Warn("no database configured, running in local mode (state is not persisted)")
		configStore = orchestrator.NewMemoryConfigStore()
		approvalStore = approval.NewMemoryStore()
		logStorage = actionlog.NewMemoryStorage()
		statsProvider = localStats{}
		userRepo = newLocalUserRepo(logger, cfg.Auth.BcryptCost)
	}

	// 3. Redis: внешняя трансляция событий + почтовые очереди.
	// Пустой Addr = все в памяти, движок полностью автономен.
	// instanceID метит исходящие события: слушатель отсекает по нему свое эхо.
	instanceID := uuid.New().String()
	var (
		broadcaster   events.Broadcaster = events.NopBroadcaster{}
		sourceFactory orchestrator.SourceFactory
		sharedSource  mailbox.Source
		rdb           *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		broadcaster = events.NewRedisBroadcaster(rdb, instanceID, logger)
		sourceFactory = func(agentID string) mailbox.Source {
			return mailbox.NewRedisSource(rdb, agentID, logger)
		}
	} else {
		sharedSource = mailbox.NewMemorySource()
	}

	// 4. Журнал действий: батч-воркер поверх хранилища
	writer := actionlog.NewWriter(logStorage, cfg.Engine.ActionLogBatchSize, cfg.Engine.ActionLogFlushInterval, logger)
	writer.Start()

	// 5. Решающий пайплайн. Классификатор здесь мок: боевой LLM-клиент
	// подключается той же сигнатурой pipeline.Classifier
	classifier := &pipeline.MockClassifier{MaxLatency: 200 * time.Millisecond}
	pipe := pipeline.New(ctxProvider, classifier, cfg.Engine.ClassifierTimeout, logger)

	// 6. Исполнение + Надежность (Retries, Circuit Breaker, Rate Limit)
	registry := executor.NewRegistry(logger)
	mailProvider := executor.NewReliableProvider(executor.NewMockMailProvider())
	executor.RegisterMailHandlers(registry, mailProvider)

	// 7. Метрики
	reg := prometheus.NewRegistry()
	metrics := agent.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 8. Ядро: шина, HITL, оркестратор
	bus := events.NewBus()
	approvalSvc := approval.NewService(approvalStore, registry, bus, logger)

	// Зеркалим трансляцию других реплик в локальную шину: подписчики этого
	// процесса видят события всего кластера. Свои события отбрасываем по origin,
	// форвардер оркестратора чужие (origin непустой) наружу не пересылает.
	if rdb != nil {
		go events.ListenResilient(appCtx, rdb, logger, nil, func(e domain.Event) {
			if e.Origin == instanceID {
				return
			}
			bus.Publish(e)
		})
	}

	deps := agent.Deps{
		Source:    sharedSource,
		Pipeline:  pipe,
		Evaluator: rules.NewEvaluator(logger),
		Executor:  registry,
		Approvals: approvalSvc,
		Events:    bus,
		ActionLog: writer,
		Metrics:   metrics,
		Logger:    logger,
	}

	orch := orchestrator.New(configStore, approvalSvc, broadcaster, deps, sourceFactory,
		orchestrator.Defaults{
			CheckInterval: cfg.Engine.DefaultCheckInterval,
			BatchSize:     cfg.Engine.DefaultBatchSize,
		}, logger)
	if err := orch.Load(appCtx); err != nil {
		logger.Fatal("orchestrator load failed", zap.Error(err))
	}
	if err := orch.StartAll(appCtx); err != nil {
		logger.Warn("some agents failed to start", zap.Error(err))
	}

	// 9. Console API (RS256 + bcrypt)
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key load failed", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}

	authSvc := service.NewAuthService(userRepo, privateKey, publicKey, cfg.Auth.TokenTTL)
	consoleSrv := server.NewConsoleServer(
		logger,
		authSvc,
		handler.NewAuthHandler(authSvc),
		handler.NewAgentHandler(orch),
		handler.NewApprovalHandler(orch),
		handler.NewDashboardHandler(statsProvider),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("engine stopping...")

	cancel()
	orch.StopAll() // мягкая остановка агентов
	writer.Stop()  // дожимаем хвост журнала в базу

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("engine exited properly")
}

// localStats — заглушка дашборда для режима без базы.
type localStats struct{}

func (localStats) GetTriageStats(context.Context, string) (*domain.TriageStats, error) {
	return &domain.TriageStats{TopActions: map[string]int64{}}, nil
}

// localUserRepo — операторская учетка для local-режима. Пароль берется из
// LOCAL_OPERATOR_PASSWORD, по умолчанию "operator".
type localUserRepo struct {
	user *domain.User
}

func newLocalUserRepo(logger *zap.Logger, bcryptCost int) *localUserRepo {
	password := os.Getenv("LOCAL_OPERATOR_PASSWORD")
	if password == "" {
		password = "operator"
		logger.Warn("local mode uses default operator credentials")
	}
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return &localUserRepo{user: &domain.User{
		ID:           uuid.New().String(),
		Username:     "operator",
		PasswordHash: string(hash),
		Role:         "operator",
		Scopes:       map[string]bool{domain.ScopeApprovalsDecide: true},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}}
}

func (r *localUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	if username != r.user.Username {
		return nil, nil
	}
	u := *r.user
	return &u, nil
}
