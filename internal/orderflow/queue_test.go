package orderflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderflow/internal/domain/models"
	applogger "orderflow/pkg/logger"
)

func newTestLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// fakeStore confirms every candle unless failAfter limits how many ids are
// confirmed per call, in which case the remainder is unconfirmed and err is
// returned.
type fakeStore struct {
	mu        sync.Mutex
	upserts   int
	received  [][]*models.ClosedCandle
	confirmAt int // confirm at most this many per call; 0 means all
	err       error
}

func (s *fakeStore) BatchUpsert(_ context.Context, candles []*models.ClosedCandle) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.received = append(s.received, candles)

	n := len(candles)
	if s.confirmAt > 0 && s.confirmAt < n {
		n = s.confirmAt
	}
	ids := make([]string, 0, n)
	for _, c := range candles[:n] {
		ids = append(ids, c.ID)
	}
	return ids, s.err
}

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) GetCandles(context.Context, string, string, models.Interval, time.Time, time.Time) ([]*models.ClosedCandle, error) {
	return nil, nil
}

func (s *fakeStore) GetTimestampRange(context.Context, string, string) (map[models.Interval]models.TimestampRange, error) {
	return nil, nil
}

func (s *fakeStore) FindGaps(context.Context, string, string, models.Interval, time.Duration) ([]models.Gap, error) {
	return nil, nil
}

func (s *fakeStore) PruneOldData(context.Context) error { return nil }
func (s *fakeStore) Health(context.Context) error       { return nil }
func (s *fakeStore) Close() error                       { return nil }

type fakeNotifier struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, topic string, _ interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
	return n.err
}

func (n *fakeNotifier) Close() error { return nil }

func queueCandle(openMs int64, interval models.Interval) *models.ClosedCandle {
	clock := NewSimulatedClock(time.UnixMilli(openMs))
	agg, _ := NewAggregator("binance", "BTCUSDT", interval, clock)
	agg.ProcessTrade(false, 1, 100)
	return agg.CloseActive()
}

func TestFlushMarksConfirmed(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	q := NewCandleQueue(store, notifier, nil, newTestLogger(t))

	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	a := queueCandle(open, models.OneMinute)
	b := queueCandle(open+60_000, models.OneMinute)
	q.Enqueue(a)
	q.Enqueue(b)

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !a.DidPersistToStore || !b.DidPersistToStore {
		t.Fatalf("candles not marked persisted")
	}
	if got := len(q.Unpersisted()); got != 0 {
		t.Fatalf("unpersisted = %d, want 0", got)
	}
	if len(notifier.topics) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.topics))
	}
	if notifier.topics[0] != a.Topic() {
		t.Fatalf("topic = %q, want %q", notifier.topics[0], a.Topic())
	}
}

func TestFlushIdempotent(t *testing.T) {
	store := &fakeStore{}
	q := NewCandleQueue(store, nil, nil, newTestLogger(t))

	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	q.Enqueue(queueCandle(open, models.OneMinute))

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want 1 (second flush had nothing pending)", store.upserts)
	}
}

func TestFlushPartialConfirmRetries(t *testing.T) {
	store := &fakeStore{confirmAt: 1, err: errors.New("insert timeout")}
	q := NewCandleQueue(store, nil, nil, newTestLogger(t))

	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	a := queueCandle(open, models.OneMinute)
	b := queueCandle(open+60_000, models.OneMinute)
	q.Enqueue(a)
	q.Enqueue(b)

	if err := q.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}
	if !a.DidPersistToStore {
		t.Fatalf("confirmed candle not marked persisted")
	}
	if b.DidPersistToStore {
		t.Fatalf("unconfirmed candle marked persisted")
	}

	// next flush retries only the unconfirmed candle
	store.confirmAt = 0
	store.err = nil
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if got := store.received[1]; len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("retry sent %d candles, want only the unconfirmed one", len(got))
	}
	if !b.DidPersistToStore {
		t.Fatalf("retried candle not marked persisted")
	}
}

func TestFlushNotifierFailureIsNotRetried(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	q := NewCandleQueue(store, notifier, nil, newTestLogger(t))

	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	q.Enqueue(queueCandle(open, models.OneMinute))

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush must not fail on notification errors: %v", err)
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(notifier.topics) != 1 {
		t.Fatalf("publishes = %d, want 1 (fire-and-forget)", len(notifier.topics))
	}
}

func TestPruneEvictsOldest(t *testing.T) {
	store := &fakeStore{}
	q := NewCandleQueue(store, nil, nil, newTestLogger(t))

	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	candles := make([]*models.ClosedCandle, 5)
	for i := range candles {
		candles[i] = queueCandle(open+int64(i)*60_000, models.OneMinute)
		q.Enqueue(candles[i])
	}

	q.Prune(2)
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}

	// only the two newest survive, persistence status notwithstanding
	left := q.Unpersisted()
	if len(left) != 2 || left[0].ID != candles[3].ID || left[1].ID != candles[4].ID {
		t.Fatalf("wrong survivors after prune")
	}

	q.Prune(10)
	if q.Len() != 2 {
		t.Fatalf("prune below maxSize must be a no-op")
	}
}

func TestFlushEmptyQueue(t *testing.T) {
	store := &fakeStore{}
	q := NewCandleQueue(store, nil, nil, newTestLogger(t))
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if store.upserts != 0 {
		t.Fatalf("empty flush must not hit the store")
	}
}
