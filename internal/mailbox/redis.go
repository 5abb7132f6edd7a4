package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/infra"
)

// RedisSource читает очередь писем агента из Redis. Ингест (sync с почтовым
// провайдером) наполняет список id и хэш с телами писем; движок только
// читает и подтверждает.
//
// Схема ключей:
//
//	inboxpilot:mailbox:{agent}:queue — список id в порядке поступления
//	inboxpilot:mailbox:{agent}:items — hash id -> JSON письма
//	inboxpilot:mailbox:{agent}:done  — set обработанных id
type RedisSource struct {
	rdb     *redis.Client
	agentID string
	logger  *zap.Logger
}

func NewRedisSource(rdb *redis.Client, agentID string, logger *zap.Logger) *RedisSource {
	return &RedisSource{
		rdb:     rdb,
		agentID: agentID,
		logger:  logger.With(zap.String("mod", "mailbox"), zap.String("agent_id", agentID)),
	}
}

// Next — только чтение (peek), без побочных эффектов. Порядок — порядок
// поступления в очередь.
func (s *RedisSource) Next(ctx context.Context, limit int) ([]domain.MailItem, error) {
	ids, err := s.rdb.LRange(ctx, infra.MailboxQueueKey(s.agentID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("mailbox: queue read failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Отфильтровываем уже обработанные (подтверждение могло не успеть
	// вычистить очередь)
	seen, err := s.rdb.SMIsMember(ctx, infra.MailboxDoneKey(s.agentID), toAny(ids)...).Result()
	if err != nil {
		return nil, fmt.Errorf("mailbox: done-set check failed: %w", err)
	}

	fresh := make([]string, 0, len(ids))
	for i, id := range ids {
		if !seen[i] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	raws, err := s.rdb.HMGet(ctx, infra.MailboxItemsKey(s.agentID), fresh...).Result()
	if err != nil {
		return nil, fmt.Errorf("mailbox: items read failed: %w", err)
	}

	items := make([]domain.MailItem, 0, len(raws))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// тело уже вычищено — пропускаем, id доедет в done при Mark
			continue
		}
		var item domain.MailItem
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			s.logger.Warn("malformed mail item in queue, skipping",
				zap.String("item_id", fresh[i]), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkProcessed подтверждает обработку: id уходит в done-set, очередь и
// хэш вычищаются.
func (s *RedisSource) MarkProcessed(ctx context.Context, itemID string) error {
	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, infra.MailboxDoneKey(s.agentID), itemID)
	pipe.LRem(ctx, infra.MailboxQueueKey(s.agentID), 1, itemID)
	pipe.HDel(ctx, infra.MailboxItemsKey(s.agentID), itemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mailbox: mark processed failed: %w", err)
	}
	return nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
