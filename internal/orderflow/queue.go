package orderflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	applogger "orderflow/pkg/logger"
)

// CandleQueue holds closed candles that have not yet been confirmed durable.
// Persistence is at-least-once: a candle stays queued and is retried on every
// flush until the store confirms its id, and the store's upsert keyed on
// (exchange, symbol, interval, openTime) absorbs duplicates.
//
// Prune is the deliberate data-loss valve: under a sustained storage outage
// the queue evicts its oldest entries regardless of persistence status to
// bound memory. Every eviction of an unpersisted candle is logged with the
// candle's identity so operators can see what was dropped.
type CandleQueue struct {
	mu    sync.Mutex
	queue []*models.ClosedCandle

	store    repository.CandleStore
	notifier repository.Notifier
	metrics  repository.Metrics
	log      *applogger.Logger
}

// NewCandleQueue creates a queue flushing to store and notifying on notifier.
// notifier may be nil (backfill runs without fan-out).
func NewCandleQueue(store repository.CandleStore, notifier repository.Notifier, metrics repository.Metrics, log *applogger.Logger) *CandleQueue {
	return &CandleQueue{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
	}
}

// Enqueue appends a closed candle. Never blocks on I/O.
func (q *CandleQueue) Enqueue(c *models.ClosedCandle) {
	q.mu.Lock()
	q.queue = append(q.queue, c)
	q.mu.Unlock()
}

// Len returns the current queue length, persisted entries included.
func (q *CandleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Unpersisted returns a snapshot of candles not yet confirmed durable.
func (q *CandleQueue) Unpersisted() []*models.ClosedCandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.ClosedCandle, 0, len(q.queue))
	for _, c := range q.queue {
		if !c.DidPersistToStore {
			out = append(out, c)
		}
	}
	return out
}

// Flush sends all unpersisted candles to the store's batch upsert and marks
// the confirmed ids durable. Unconfirmed candles stay queued for the next
// flush. One notification is published per confirmed candle, fire-and-forget.
// Flush operates on a snapshot; Enqueue is never blocked by storage I/O.
func (q *CandleQueue) Flush(ctx context.Context) error {
	pending := q.Unpersisted()
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	savedIDs, err := q.store.BatchUpsert(ctx, pending)

	saved := q.markSaved(savedIDs)
	if q.metrics != nil {
		q.metrics.RecordFlush(len(saved), time.Since(start).Seconds())
	}

	if err != nil {
		if q.metrics != nil {
			q.metrics.RecordError("flush")
		}
		q.log.Warn("candle flush incomplete, unconfirmed candles stay queued",
			applogger.Int("pending", len(pending)),
			applogger.Int("saved", len(saved)),
			applogger.Error(err),
		)
	} else {
		q.log.Debug("candle flush ok", applogger.Int("saved", len(saved)))
	}

	q.notifyClosed(ctx, saved)

	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Prune evicts the oldest entries (insertion order) beyond maxSize,
// regardless of persistence status.
func (q *CandleQueue) Prune(maxSize int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if maxSize <= 0 || len(q.queue) <= maxSize {
		return
	}

	evict := q.queue[:len(q.queue)-maxSize]
	for _, c := range evict {
		if !c.DidPersistToStore {
			q.log.Error("pruning unpersisted candle, data lost",
				applogger.String("exchange", c.Exchange),
				applogger.String("symbol", c.Symbol),
				applogger.String("interval", string(c.Interval)),
				applogger.Int64("open_time_ms", c.OpenTimeMs),
			)
		}
	}
	if q.metrics != nil {
		q.metrics.RecordPruned(len(evict))
	}
	// copy so the evicted entries are not pinned by the old backing array
	keep := q.queue[len(q.queue)-maxSize:]
	q.queue = make([]*models.ClosedCandle, len(keep))
	copy(q.queue, keep)
}

// markSaved flips DidPersistToStore for the confirmed ids and returns the
// matched candles.
func (q *CandleQueue) markSaved(ids []string) []*models.ClosedCandle {
	if len(ids) == 0 {
		return nil
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	saved := make([]*models.ClosedCandle, 0, len(ids))
	for _, c := range q.queue {
		if idSet[c.ID] && !c.DidPersistToStore {
			c.DidPersistToStore = true
			saved = append(saved, c)
		}
	}
	return saved
}

// notifyClosed publishes one "closed" notification per distinct candle topic.
// Failures are logged and never retried.
func (q *CandleQueue) notifyClosed(ctx context.Context, saved []*models.ClosedCandle) {
	if q.notifier == nil || len(saved) == 0 {
		return
	}
	seen := make(map[string]bool, len(saved))
	for _, c := range saved {
		topic := c.Topic()
		if seen[topic] {
			continue
		}
		seen[topic] = true
		if err := q.notifier.Publish(ctx, topic, c); err != nil {
			q.log.Warn("closed-candle notification failed",
				applogger.String("topic", topic),
				applogger.Error(err),
			)
			if q.metrics != nil {
				q.metrics.RecordError("notify")
			}
		}
	}
}
