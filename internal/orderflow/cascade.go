package orderflow

import (
	"context"
	"time"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	applogger "orderflow/pkg/logger"
)

// Rollup cascades higher-timeframe candles for one series at a boundary. Both
// the live pipeline and backfill replay drive it, so boundary semantics are
// identical in both modes: a tier is built only when its full base window is
// stored, and each tier is flushed before the next one reads it back.
type Rollup struct {
	store    repository.CandleStore
	queue    *CandleQueue
	metrics  repository.Metrics
	log      *applogger.Logger
	onCandle func(*models.ClosedCandle)
}

// NewRollup creates a roll-up cascade. onCandle (optional) observes every
// merged candle after it is enqueued.
func NewRollup(store repository.CandleStore, queue *CandleQueue, metrics repository.Metrics, log *applogger.Logger, onCandle func(*models.ClosedCandle)) *Rollup {
	return &Rollup{
		store:    store,
		queue:    queue,
		metrics:  metrics,
		log:      log,
		onCandle: onCandle,
	}
}

// CascadeAt builds every candidate interval with a boundary at boundaryMs
// (the just-closed candle's closeTimeMs + 1) for the given series. Candidates
// are expected smallest to largest so a fresh tier can feed the next.
func (r *Rollup) CascadeAt(ctx context.Context, exchange, symbol string, boundaryMs int64, candidates []models.Interval) {
	nextOpen := time.UnixMilli(boundaryMs).UTC()
	for _, target := range TriggeredIntervals(nextOpen, candidates) {
		if err := r.queue.Flush(ctx); err != nil {
			r.log.Warn("rollup flush failed",
				applogger.String("interval", string(target)),
				applogger.Error(err),
			)
		}
		r.buildOne(ctx, exchange, symbol, target, boundaryMs)
	}
}

// buildOne merges one higher-timeframe candle when its base window is fully
// stored. An incomplete window is skipped, not retried; gap repair is the
// correction path.
func (r *Rollup) buildOne(ctx context.Context, exchange, symbol string, target models.Interval, boundaryMs int64) {
	rule, ok := RuleFor(target)
	if !ok {
		return
	}
	baseMs, err := rule.Base.DurationMs()
	if err != nil {
		return
	}

	windowStart := time.UnixMilli(boundaryMs - baseMs*int64(rule.Count)).UTC()
	windowEnd := time.UnixMilli(boundaryMs - 1).UTC()

	candles, err := r.store.GetCandles(ctx, exchange, symbol, rule.Base, windowStart, windowEnd)
	if err != nil {
		r.log.Warn("rollup window query failed",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(target)),
			applogger.Error(err),
		)
		if r.metrics != nil {
			r.metrics.RecordError("rollup")
		}
		return
	}
	if len(candles) != rule.Count {
		r.log.Warn("rollup window incomplete, skipping boundary",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(target)),
			applogger.Int64("boundary_ms", boundaryMs),
			applogger.Int("have", len(candles)),
			applogger.Int("want", rule.Count),
		)
		return
	}

	merged, err := Merge(candles, target)
	if err != nil {
		r.log.Error("rollup merge failed",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(target)),
			applogger.Error(err),
		)
		return
	}

	r.queue.Enqueue(merged)
	if r.metrics != nil {
		r.metrics.RecordCandleClosed(merged.Exchange, merged.Symbol, string(merged.Interval))
	}
	if r.onCandle != nil {
		r.onCandle(merged)
	}
}
