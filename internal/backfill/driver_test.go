package backfill

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"orderflow/internal/domain/models"
	"orderflow/internal/orderflow"
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

// memStore is an in-memory CandleStore honoring the upsert key
// (exchange, symbol, interval, openTime).
type memStore struct {
	mu      sync.Mutex
	candles map[string]*models.ClosedCandle
}

func newMemStore() *memStore {
	return &memStore{candles: make(map[string]*models.ClosedCandle)}
}

func (s *memStore) key(c *models.ClosedCandle) string {
	return c.Exchange + "|" + c.Symbol + "|" + string(c.Interval) + "|" + c.OpenTime.Format(time.RFC3339Nano)
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) BatchUpsert(_ context.Context, candles []*models.ClosedCandle) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(candles))
	for _, c := range candles {
		cp := *c
		s.candles[s.key(c)] = &cp
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *memStore) series(exchange, symbol string, interval models.Interval) []*models.ClosedCandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ClosedCandle
	for _, c := range s.candles {
		if c.Exchange == exchange && c.Symbol == symbol && c.Interval == interval {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTimeMs < out[j].OpenTimeMs })
	return out
}

func (s *memStore) GetCandles(_ context.Context, exchange, symbol string, interval models.Interval, start, end time.Time) ([]*models.ClosedCandle, error) {
	var out []*models.ClosedCandle
	for _, c := range s.series(exchange, symbol, interval) {
		if !start.IsZero() && c.OpenTime.Before(start) {
			continue
		}
		if !end.IsZero() && c.OpenTime.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) GetTimestampRange(_ context.Context, exchange, symbol string) (map[models.Interval]models.TimestampRange, error) {
	out := make(map[models.Interval]models.TimestampRange)
	for _, interval := range models.AllIntervals {
		series := s.series(exchange, symbol, interval)
		if len(series) == 0 {
			continue
		}
		out[interval] = models.TimestampRange{
			First: series[0].OpenTime,
			Last:  series[len(series)-1].OpenTime,
		}
	}
	return out, nil
}

func (s *memStore) FindGaps(_ context.Context, exchange, symbol string, interval models.Interval, threshold time.Duration) ([]models.Gap, error) {
	series := s.series(exchange, symbol, interval)
	var gaps []models.Gap
	for i := 1; i < len(series); i++ {
		delta := series[i].OpenTime.Sub(series[i-1].OpenTime)
		if delta > threshold {
			gaps = append(gaps, models.Gap{At: series[i].OpenTime, Delta: delta})
		}
	}
	return gaps, nil
}

func (s *memStore) PruneOldData(context.Context) error { return nil }
func (s *memStore) Health(context.Context) error       { return nil }
func (s *memStore) Close() error                       { return nil }

// scriptedSource serves a fixed trade tape filtered per requested range.
type scriptedSource struct {
	tape  []models.TradeEvent
	calls int
}

func (s *scriptedSource) Trades(_ context.Context, symbol string, start, end time.Time) ([]models.TradeEvent, error) {
	s.calls++
	var out []models.TradeEvent
	for _, ev := range s.tape {
		if ev.Symbol != symbol {
			continue
		}
		if ev.TimestampMs >= start.UnixMilli() && ev.TimestampMs < end.UnixMilli() {
			out = append(out, ev)
		}
	}
	return out, nil
}

func minuteTrade(base time.Time, minute int, qty, price float64, passiveBid bool) models.TradeEvent {
	return models.TradeEvent{
		Exchange:     "binance",
		Symbol:       "BTCUSDT",
		IsPassiveBid: passiveBid,
		Quantity:     qty,
		Price:        price,
		TimestampMs:  base.Add(time.Duration(minute)*time.Minute + 30*time.Second).UnixMilli(),
	}
}

func newTestDriver(t *testing.T, store *memStore, source TradeSource) *Driver {
	t.Helper()
	log := newTestLogger(t)
	queue := orderflow.NewCandleQueue(store, nil, nil, log)
	d, err := NewDriver(source, store, queue, nil, log, "binance",
		models.OneMinute, []models.Interval{models.FiveMinutes}, 64)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

func TestRunReplaysAndCascades(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	src := &scriptedSource{}
	for m := 0; m < 10; m++ {
		src.tape = append(src.tape, minuteTrade(base, m, 1, 100+float64(m), m%2 == 0))
	}
	store := newMemStore()
	d := newTestDriver(t, store, src)

	if err := d.Run(context.Background(), "BTCUSDT", base, base.Add(10*time.Minute)); err != nil {
		t.Fatalf("run: %v", err)
	}

	mins := store.series("binance", "BTCUSDT", models.OneMinute)
	if len(mins) != 10 {
		t.Fatalf("base candles = %d, want 10", len(mins))
	}
	for i, c := range mins {
		wantOpen := base.Add(time.Duration(i) * time.Minute)
		if !c.OpenTime.Equal(wantOpen) {
			t.Fatalf("candle %d open = %v, want %v", i, c.OpenTime, wantOpen)
		}
		if c.Volume != 1 {
			t.Fatalf("candle %d volume = %v", i, c.Volume)
		}
	}

	fives := store.series("binance", "BTCUSDT", models.FiveMinutes)
	if len(fives) != 2 {
		t.Fatalf("5m candles = %d, want 2", len(fives))
	}
	if !fives[0].OpenTime.Equal(base) || !fives[1].OpenTime.Equal(base.Add(5*time.Minute)) {
		t.Fatalf("5m opens = %v, %v", fives[0].OpenTime, fives[1].OpenTime)
	}
	if fives[0].Volume != 5 || fives[1].Volume != 5 {
		t.Fatalf("5m volumes = %v, %v, want 5 each", fives[0].Volume, fives[1].Volume)
	}
	// prices 100..104 in the first window
	if fives[0].High != 104 || fives[0].Low != 100 || fives[0].Close != 104 {
		t.Fatalf("5m[0] high/low/close = %v/%v/%v", fives[0].High, fives[0].Low, fives[0].Close)
	}
}

func TestRunSkipsEmptyBuckets(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	src := &scriptedSource{tape: []models.TradeEvent{
		minuteTrade(base, 0, 2, 100, false),
		minuteTrade(base, 3, 1, 101, true),
	}}
	store := newMemStore()
	d := newTestDriver(t, store, src)

	if err := d.Run(context.Background(), "BTCUSDT", base, base.Add(5*time.Minute)); err != nil {
		t.Fatalf("run: %v", err)
	}

	mins := store.series("binance", "BTCUSDT", models.OneMinute)
	if len(mins) != 2 {
		t.Fatalf("base candles = %d, want 2 (empty buckets not persisted)", len(mins))
	}
	if !mins[0].OpenTime.Equal(base) || !mins[1].OpenTime.Equal(base.Add(3*time.Minute)) {
		t.Fatalf("opens = %v, %v", mins[0].OpenTime, mins[1].OpenTime)
	}

	// the 5m window has only 2 of its 5 base candles, so no roll-up is built
	if fives := store.series("binance", "BTCUSDT", models.FiveMinutes); len(fives) != 0 {
		t.Fatalf("5m candles = %d, want 0 for an incomplete base window", len(fives))
	}
}

func TestRunBoundsQueueRetention(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	src := &scriptedSource{}
	for m := 0; m < 120; m++ {
		src.tape = append(src.tape, minuteTrade(base, m, 1, 100, false))
	}
	store := newMemStore()
	log := newTestLogger(t)
	queue := orderflow.NewCandleQueue(store, nil, nil, log)
	d, err := NewDriver(src, store, queue, nil, log, "binance",
		models.OneMinute, []models.Interval{models.FiveMinutes}, 16)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}

	if err := d.Run(context.Background(), "BTCUSDT", base, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := len(store.series("binance", "BTCUSDT", models.OneMinute)); got != 120 {
		t.Fatalf("base candles = %d, want 120", got)
	}
	if got := len(store.series("binance", "BTCUSDT", models.FiveMinutes)); got != 24 {
		t.Fatalf("5m candles = %d, want 24", got)
	}
	if got := len(queue.Unpersisted()); got != 0 {
		t.Fatalf("unpersisted = %d, want 0", got)
	}
	if got := queue.Len(); got > 16 {
		t.Fatalf("queue retains %d candles, want at most 16", got)
	}
}

func TestRunResumesAfterStoredRange(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemStore()

	// pre-store minutes 0 and 1
	seed := &scriptedSource{tape: []models.TradeEvent{
		minuteTrade(base, 0, 1, 100, false),
		minuteTrade(base, 1, 1, 100, false),
	}}
	if err := newTestDriver(t, store, seed).Run(context.Background(), "BTCUSDT", base, base.Add(2*time.Minute)); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	src := &scriptedSource{tape: []models.TradeEvent{
		minuteTrade(base, 0, 9, 999, false), // must never be refetched
		minuteTrade(base, 2, 1, 102, false),
	}}
	if err := newTestDriver(t, store, src).Run(context.Background(), "BTCUSDT", base, base.Add(3*time.Minute)); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	mins := store.series("binance", "BTCUSDT", models.OneMinute)
	if len(mins) != 3 {
		t.Fatalf("base candles = %d, want 3", len(mins))
	}
	if mins[0].Close == 999 {
		t.Fatalf("resume re-replayed an already stored bucket")
	}
}

func TestRepairGaps(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemStore()

	// store minutes 0 and 4, leaving 1..3 missing
	seed := &scriptedSource{tape: []models.TradeEvent{
		minuteTrade(base, 0, 1, 100, false),
		minuteTrade(base, 4, 1, 104, false),
	}}
	seedDriver := newTestDriver(t, store, seed)
	if err := seedDriver.replayRange(context.Background(), "BTCUSDT", base, base.Add(1*time.Minute)); err != nil {
		t.Fatalf("seed 0: %v", err)
	}
	if err := seedDriver.replayRange(context.Background(), "BTCUSDT", base.Add(4*time.Minute), base.Add(5*time.Minute)); err != nil {
		t.Fatalf("seed 4: %v", err)
	}
	if got := len(store.series("binance", "BTCUSDT", models.OneMinute)); got != 2 {
		t.Fatalf("seeded candles = %d, want 2", got)
	}

	src := &scriptedSource{}
	for m := 0; m < 5; m++ {
		src.tape = append(src.tape, minuteTrade(base, m, 1, 100+float64(m), false))
	}
	d := newTestDriver(t, store, src)
	if err := d.RepairGaps(context.Background(), "BTCUSDT", time.Minute); err != nil {
		t.Fatalf("repair: %v", err)
	}

	mins := store.series("binance", "BTCUSDT", models.OneMinute)
	if len(mins) != 5 {
		t.Fatalf("base candles after repair = %d, want 5", len(mins))
	}
	gaps, _ := store.FindGaps(context.Background(), "binance", "BTCUSDT", models.OneMinute, time.Minute)
	if len(gaps) != 0 {
		t.Fatalf("gaps remain after repair: %v", gaps)
	}
}
