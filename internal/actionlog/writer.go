package actionlog

/*
Файл writer.go реализует журнал действий агентов — асинхронный движок
персистентности истории решений (он же источник learning context).

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал между циклом агента и воркером
  записи. Задержки БД не влияют на скорость разбора почты.
- Batching & Efficiency: накопление записей в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается до
  конца (Final Flush), потерь записей при перезагрузке нет.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage определяет, куда физически будут сохраняться записи
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

type Logger interface {
	Log(entry Entry)
}

type Writer struct {
	ch     chan Entry // Буфер для асинхронности
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Защита от записи после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewWriter(repo Storage, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Writer{
		ch:            make(chan Entry, 10000),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "actionlog")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (w *Writer) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&w.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — только через закрытие канала
	w.logger.Info("stopping action log: closing channel and flushing buffer...")
	close(w.ch)
	w.wg.Wait()
	w.logger.Info("action log stopped gracefully")
}

func (w *Writer) Log(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&w.isClosed) == 1 {
		w.logger.Warn("action log entry dropped: writer is stopping", zap.String("id", entry.ID))
		return
	}

	// Load Shedding: при переполнении буфера пишем факт потери в логгер,
	// но не блокируем цикл агента
	select {
	case w.ch <- entry:
	default:
		w.logger.Error("actionlog_buffer_overflow",
			zap.String("agent_id", entry.AgentID),
			zap.String("item_id", entry.ItemID),
		)
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	batch := make([]Entry, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже закрыт
			if err := w.repo.WriteBatch(context.Background(), batch); err != nil {
				w.logger.Error("action log flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case entry, ok := <-w.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush и выход
				flush()
				w.logger.Info("action log worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
