package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "inboxpilot"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEvents — канал трансляции высокоценных событий ядра наружу
	// (UI, вебхуки). Доставка best-effort.
	RedisChanEvents = RedisNamespace + ":events"
)

// Ключи почтовых очередей агентов
func MailboxQueueKey(agentID string) string {
	return fmt.Sprintf("%s:mailbox:%s:queue", RedisNamespace, agentID)
}

func MailboxItemsKey(agentID string) string {
	return fmt.Sprintf("%s:mailbox:%s:items", RedisNamespace, agentID)
}

func MailboxDoneKey(agentID string) string {
	return fmt.Sprintf("%s:mailbox:%s:done", RedisNamespace, agentID)
}
