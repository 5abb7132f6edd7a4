package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra"
)

// ListenResilient — универсальный цикл "живучей" подписки на канал событий
// движка. Обрабатывает переподключения, логирование и разбор сообщений.
// Движок зеркалит через него события других реплик в локальную шину;
// тем же циклом пользуются внешние потребители трансляции (UI-шлюз).
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onEvent func(event domain.Event), // Callback для обработки события
) {
	for {
		pubsub := rdb.Subscribe(ctx, infra.RedisChanEvents)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanEvents), zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Вызываем синхронизацию при каждом успешном коннекте:
		// за время разрыва трансляция могла потерять события
		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Error("invalid event payload", zap.String("payload", msg.Payload))
					continue
				}
				onEvent(event)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
