package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avealis/inboxpilot/internal/domain"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	_, ch1 := bus.Subscribe(4)
	_, ch2 := bus.Subscribe(4)

	sent := bus.Emit(domain.EventAgentStarted, "a1", "u1", map[string]any{"k": "v"})
	require.NotEmpty(t, sent.ID)
	assert.False(t, sent.Timestamp.IsZero())

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, sent.ID, got.ID)
			assert.Equal(t, domain.EventAgentStarted, got.Type)
			assert.Equal(t, "a1", got.AgentID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	_, ch := bus.Subscribe(1)

	// Буфер на 1: второе событие для отставшего подписчика теряется,
	// но Publish не блокируется
	done := make(chan struct{})
	go func() {
		bus.Emit(domain.EventItemProcessed, "a1", "u1", nil)
		bus.Emit(domain.EventItemProcessed, "a1", "u1", nil)
		bus.Emit(domain.EventItemProcessed, "a1", "u1", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, ch, 1)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	id, ch := bus.Subscribe(4)

	bus.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Публикация после отписки не паникует
	bus.Emit(domain.EventAgentStopped, "a1", "u1", nil)
}
