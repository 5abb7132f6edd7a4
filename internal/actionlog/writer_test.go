package actionlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterFlushesByTicker(t *testing.T) {
	storage := NewMemoryStorage()
	w := NewWriter(storage, 100, 20*time.Millisecond, zap.NewNop())
	w.Start()
	defer w.Stop()

	w.Log(Entry{AgentID: "a1", UserID: "u1", Action: "archive", Outcome: OutcomeExecuted})

	assert.Eventually(t, func() bool {
		return len(storage.Entries()) == 1
	}, time.Second, 10*time.Millisecond)

	got := storage.Entries()[0]
	assert.NotEmpty(t, got.ID, "id must be assigned on enqueue")
	assert.False(t, got.Timestamp.IsZero())
}

func TestWriterFlushesByBatchSize(t *testing.T) {
	storage := NewMemoryStorage()
	w := NewWriter(storage, 3, time.Hour, zap.NewNop()) // тикер не поможет
	w.Start()
	defer w.Stop()

	for i := 0; i < 3; i++ {
		w.Log(Entry{AgentID: "a1", Action: "archive", Outcome: OutcomeExecuted})
	}

	assert.Eventually(t, func() bool {
		return len(storage.Entries()) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWriterDrainsOnStop(t *testing.T) {
	storage := NewMemoryStorage()
	w := NewWriter(storage, 1000, time.Hour, zap.NewNop())
	w.Start()

	for i := 0; i < 50; i++ {
		w.Log(Entry{AgentID: "a1", Action: "archive", Outcome: OutcomeExecuted})
	}
	w.Stop()

	// Stop обязан дожать весь хвост, ни одна запись не теряется
	require.Len(t, storage.Entries(), 50)

	// Записи после остановки тихо отбрасываются
	w.Log(Entry{AgentID: "a1", Action: "archive", Outcome: OutcomeExecuted})
	assert.Len(t, storage.Entries(), 50)
}
