package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Bus — локальная шина событий ядра. Publish синхронный и никогда не
// возвращает ошибку вызывающему: медленный подписчик теряет события
// (drop on overflow), но не тормозит цикл агента.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan domain.Event
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan domain.Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan domain.Event) {
	if bufSize <= 0 {
		bufSize = 64
	}
	id := uuid.New().String()
	ch := make(chan domain.Event, bufSize)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// буфер подписчика полон — событие для него теряется
		}
	}
}

// Emit собирает событие и публикует его. Fire-and-forget.
func (b *Bus) Emit(eventType domain.EventType, agentID, userID string, payload map[string]any) domain.Event {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		AgentID:   agentID,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	b.Publish(event)
	return event
}
