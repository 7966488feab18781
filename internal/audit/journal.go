package audit

/*
Файл journal.go реализует журнал решений шлюза (Audit Trail).

- Non-blocking Logging: события из Hot Path уходят в буферизованный канал,
  задержки записи в БД не влияют на время ответа invoker'у.
- Batching: накопление событий в памяти и пакетная запись в PostgreSQL
  по таймеру или при достижении лимита пачки.
- Drain Pattern: при остановке канал закрывается, воркер вычитывает остатки
  и делает финальный flush. Потерь при штатной перезагрузке нет.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 500 * time.Millisecond
	defaultBufferSize    = 10000
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []DecisionEvent) error
}

type Auditor interface {
	Log(event DecisionEvent)
}

type Journal struct {
	ch            chan DecisionEvent
	repo          StorageInterface
	logger        *zap.Logger
	wg            sync.WaitGroup
	flushInterval time.Duration
	batchSize     int

	isClosed atomic.Bool
	dropped  atomic.Int64
}

// NewJournal создает журнал. Для bufferSize и flushInterval <= 0 берутся значения по умолчанию.
func NewJournal(repo StorageInterface, logger *zap.Logger, bufferSize int, flushInterval time.Duration) *Journal {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &Journal{
		ch:            make(chan DecisionEvent, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		flushInterval: flushInterval,
		batchSize:     defaultBatchSize,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	if !j.isClosed.CompareAndSwap(false, true) {
		return
	}
	// даем текущим Log проскочить
	time.Sleep(10 * time.Millisecond)

	j.logger.Info("stopping audit journal: closing channel and flushing buffer...")
	close(j.ch)
	j.wg.Wait()
	j.logger.Info("audit journal stopped gracefully")
}

func (j *Journal) Log(event DecisionEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if j.isClosed.Load() {
		j.logger.Warn("audit event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении не блокируем шлюз
	select {
	case j.ch <- event:
	default:
		j.dropped.Add(1)
		j.logger.Error("audit_buffer_overflow",
			zap.String("invoker", event.Invoker),
			zap.String("trace_id", event.TraceID),
		)
	}
}

// Pending возвращает текущее заполнение буфера (для метрик).
func (j *Journal) Pending() int { return len(j.ch) }

// Dropped считает события, сброшенные из-за переполнения.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]DecisionEvent, 0, j.batchSize)
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]DecisionEvent, 0, j.batchSize)
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				// канал закрыт в Stop(): остатки уже вычитаны
				flush()
				j.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
