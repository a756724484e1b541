package backfill

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	"orderflow/internal/orderflow"
	applogger "orderflow/pkg/logger"
	"orderflow/pkg/util"
)

// Driver replays historical trades through the same aggregator, queue, and
// roll-up cascade the live pipeline uses. Time is driven by a simulated clock
// advanced from trade timestamps, and empty buckets are closed explicitly so
// the bucket grid stays contiguous.
type Driver struct {
	source  TradeSource
	store   repository.CandleStore
	queue   *orderflow.CandleQueue
	rollup  *orderflow.Rollup
	metrics repository.Metrics
	log     *applogger.Logger

	exchange     string
	baseInterval models.Interval
	baseMs       int64
	htfIntervals []models.Interval
	queueMaxSize int
}

// NewDriver creates a backfill driver. The queue should be built without a
// notifier: backfilled candles are not fanned out. The queue is pruned to
// queueMaxSize as the replay advances, same valve as the live path.
func NewDriver(
	source TradeSource,
	store repository.CandleStore,
	queue *orderflow.CandleQueue,
	metrics repository.Metrics,
	log *applogger.Logger,
	exchange string,
	baseInterval models.Interval,
	htfIntervals []models.Interval,
	queueMaxSize int,
) (*Driver, error) {
	baseMs, err := baseInterval.DurationMs()
	if err != nil {
		return nil, fmt.Errorf("backfill driver: %w", err)
	}
	return &Driver{
		source:       source,
		store:        store,
		queue:        queue,
		rollup:       orderflow.NewRollup(store, queue, metrics, log, nil),
		metrics:      metrics,
		log:          log,
		exchange:     exchange,
		baseInterval: baseInterval,
		baseMs:       baseMs,
		htfIntervals: htfIntervals,
		queueMaxSize: queueMaxSize,
	}, nil
}

// Run backfills one symbol from start to end, resuming after the newest
// stored base candle when one exists.
func (d *Driver) Run(ctx context.Context, symbol string, start, end time.Time) error {
	if err := d.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	ranges, err := d.store.GetTimestampRange(ctx, d.exchange, symbol)
	if err != nil {
		return fmt.Errorf("resume point: %w", err)
	}
	if r, ok := ranges[d.baseInterval]; ok {
		resumed := r.Last.Add(time.Duration(d.baseMs) * time.Millisecond)
		if resumed.After(start) {
			d.log.Info("resuming backfill after stored range",
				applogger.String("symbol", symbol),
				applogger.Time("resumed", resumed),
			)
			start = resumed
		}
	}
	if !start.Before(end) {
		return nil
	}

	return d.replayRange(ctx, symbol, start, end)
}

// RepairGaps re-replays every hole in the stored base series wider than
// threshold. The idempotent upsert absorbs overlap at the edges.
func (d *Driver) RepairGaps(ctx context.Context, symbol string, threshold time.Duration) error {
	gaps, err := d.store.FindGaps(ctx, d.exchange, symbol, d.baseInterval, threshold)
	if err != nil {
		return fmt.Errorf("find gaps: %w", err)
	}
	for _, g := range gaps {
		start := g.At.Add(-g.Delta)
		d.log.Info("repairing gap",
			applogger.String("symbol", symbol),
			applogger.Time("from", start),
			applogger.Time("to", g.At),
		)
		if err := d.replayRange(ctx, symbol, start, g.At); err != nil {
			return fmt.Errorf("repair gap at %s: %w", g.At.Format(time.RFC3339), err)
		}
	}
	return nil
}

// replayRange rebuilds candles for [start, end) in day-sized chunks.
func (d *Driver) replayRange(ctx context.Context, symbol string, start, end time.Time) error {
	start = util.Truncate(start, d.baseMs)
	endMs := util.TruncateMs(end.UnixMilli(), d.baseMs)

	clock := orderflow.NewSimulatedClock(start)
	agg, err := orderflow.NewAggregator(d.exchange, symbol, d.baseInterval, clock)
	if err != nil {
		return err
	}

	for _, day := range util.DaysBetween(start, end) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		chunkStart := day
		if start.After(chunkStart) {
			chunkStart = start
		}
		chunkEnd := day.AddDate(0, 0, 1)
		if end.Before(chunkEnd) {
			chunkEnd = end
		}
		if !chunkStart.Before(chunkEnd) {
			continue
		}

		trades, err := d.source.Trades(ctx, symbol, chunkStart, chunkEnd)
		if err != nil {
			return fmt.Errorf("replay %s: %w", util.DateString(day), err)
		}

		for _, ev := range trades {
			d.replayTrade(ctx, agg, clock, ev)
		}
	}

	// close out remaining complete buckets, including trailing empty ones
	for agg.Active() != nil && agg.Active().CloseTimeMs < endMs {
		d.closeBase(ctx, agg)
	}

	if err := d.queue.Flush(ctx); err != nil {
		return fmt.Errorf("backfill flush: %w", err)
	}
	d.queue.Prune(d.queueMaxSize)
	return nil
}

// replayTrade advances the simulated clock to the trade's bucket, closing
// every intervening bucket, then folds the trade in.
func (d *Driver) replayTrade(ctx context.Context, agg *orderflow.Aggregator, clock *orderflow.SimulatedClock, ev models.TradeEvent) {
	bucketStart := util.TruncateMs(ev.TimestampMs, d.baseMs)

	if agg.Active() == nil {
		clock.Set(time.UnixMilli(ev.TimestampMs))
	}
	for agg.Active() != nil && agg.Active().OpenTimeMs < bucketStart {
		d.closeBase(ctx, agg)
	}

	agg.ProcessTrade(ev.IsPassiveBid, ev.Quantity, ev.Price)
	if d.metrics != nil {
		d.metrics.RecordTrade(ev.Exchange, ev.Symbol)
	}
}

// closeBase closes the active bucket, queues it when non-empty, and cascades
// any higher timeframe whose boundary falls at the new bucket edge.
func (d *Driver) closeBase(ctx context.Context, agg *orderflow.Aggregator) {
	closed := agg.CloseActive()
	if closed == nil {
		return
	}

	if closed.Volume > 0 {
		d.queue.Enqueue(closed)
		if d.metrics != nil {
			d.metrics.RecordCandleClosed(closed.Exchange, closed.Symbol, string(closed.Interval))
		}
	}
	d.rollup.CascadeAt(ctx, closed.Exchange, closed.Symbol, closed.CloseTimeMs+1, d.htfIntervals)
	d.queue.Prune(d.queueMaxSize)
}
