package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra"
)

// Broadcaster доставляет события внешним наблюдателям (UI, вебхуки).
// Строго best-effort: маленький retry-бюджет, любая транспортная ошибка
// глотается с логом и никогда не всплывает к циклу агента.
type Broadcaster interface {
	Broadcast(ctx context.Context, event domain.Event)
}

// RedisBroadcaster публикует события в Pub/Sub канал. Перед отправкой
// штампует Origin идентификатором своего процесса: слушатели реплик
// отбрасывают по нему собственное эхо (см. ListenResilient).
type RedisBroadcaster struct {
	rdb    *redis.Client
	origin string
	logger *zap.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, origin string, logger *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		rdb:    rdb,
		origin: origin,
		logger: logger.Named("broadcaster"),
	}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, event domain.Event) {
	if event.Origin == "" {
		event.Origin = b.origin
	}
	msg, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("event marshal failed", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return b.rdb.Publish(ctx, infra.RedisChanEvents, msg).Err()
	})
	if err != nil {
		// Доставка не критична: лог и дальше
		b.logger.Warn("event broadcast failed",
			zap.String("type", string(event.Type)),
			zap.String("agent_id", event.AgentID),
			zap.Error(err))
	}
}

// NopBroadcaster — для local/offline режима и unit-тестов: внешней цели нет,
// трансляция полностью пропускается.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(context.Context, domain.Event) {}
