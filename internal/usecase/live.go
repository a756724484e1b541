package usecase

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"orderflow/internal/domain/models"
	drepo "orderflow/internal/domain/repository"
	"orderflow/internal/orderflow"
	applogger "orderflow/pkg/logger"
)

// LiveService runs the realtime aggregation pipeline: it consumes the trade
// stream into the coordinator, closes base candles on the minute, cascades
// higher-timeframe roll-ups, and flushes the persistence queue.
type LiveService struct {
	stream  drepo.TradeStream
	coord   *orderflow.Coordinator
	queue   *orderflow.CandleQueue
	rollup  *orderflow.Rollup
	store   drepo.CandleStore
	cache   drepo.CandleCache
	metrics drepo.Metrics
	log     *applogger.Logger

	exchange     string
	baseInterval models.Interval
	htfIntervals []models.Interval
	queueMaxSize int

	cron *cron.Cron
}

// LiveConfig carries the pipeline knobs.
type LiveConfig struct {
	Exchange     string
	BaseInterval models.Interval
	// HTFIntervals are the roll-up targets, smallest to largest so a fresh
	// candle of one tier can cascade into the next.
	HTFIntervals []models.Interval
	QueueMaxSize int
}

// NewLiveService wires the realtime pipeline. cache and metrics may be nil.
func NewLiveService(
	cfg LiveConfig,
	stream drepo.TradeStream,
	coord *orderflow.Coordinator,
	queue *orderflow.CandleQueue,
	store drepo.CandleStore,
	cache drepo.CandleCache,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *LiveService {
	s := &LiveService{
		stream:       stream,
		coord:        coord,
		queue:        queue,
		store:        store,
		cache:        cache,
		metrics:      metrics,
		log:          log,
		exchange:     cfg.Exchange,
		baseInterval: cfg.BaseInterval,
		htfIntervals: cfg.HTFIntervals,
		queueMaxSize: cfg.QueueMaxSize,
	}
	s.rollup = orderflow.NewRollup(store, queue, metrics, log, func(c *models.ClosedCandle) {
		s.cacheLatest(context.Background(), c)
	})
	return s
}

// Start connects the stream and schedules the minute close and hourly prune.
func (s *LiveService) Start(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := s.stream.Connect(ctx); err != nil {
		return err
	}
	if err := s.stream.Subscribe(ctx); err != nil {
		return err
	}
	go s.consume(ctx)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("* * * * *", func() { s.onMinuteBoundary(ctx) }); err != nil {
		return fmt.Errorf("schedule minute close: %w", err)
	}
	if _, err := s.cron.AddFunc("0 * * * *", func() {
		if err := s.store.PruneOldData(ctx); err != nil {
			s.log.Warn("storage prune failed", applogger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("prune")
			}
		}
	}); err != nil {
		return fmt.Errorf("schedule storage prune: %w", err)
	}
	s.cron.Start()

	s.log.Info("live pipeline started",
		applogger.String("exchange", s.exchange),
		applogger.String("base_interval", string(s.baseInterval)),
	)
	return nil
}

// consume pumps the trade stream into the coordinator, reconnecting on stream
// errors. Reconnect attempts continue until the context is cancelled.
func (s *LiveService) consume(ctx context.Context) {
	trades, errs := s.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			s.coord.ProcessTrade(ev)
		case err, ok := <-errs:
			if ctx.Err() != nil {
				return
			}
			if !ok || err != nil {
				if err != nil {
					s.log.Warn("trade stream error, reconnecting", applogger.Error(err))
				}
				if s.metrics != nil {
					s.metrics.RecordError("stream")
				}
				if rerr := s.stream.Reconnect(ctx); rerr != nil {
					s.log.Error("reconnect failed", applogger.Error(rerr))
					continue
				}
				trades, errs = s.stream.Read(ctx)
			}
		}
	}
}

// onMinuteBoundary closes all base candles, persists them, and cascades
// higher-timeframe roll-ups whose boundary has been reached.
func (s *LiveService) onMinuteBoundary(ctx context.Context) {
	closed := s.coord.CloseAll()
	if len(closed) == 0 {
		return
	}

	for _, c := range closed {
		if c.Volume == 0 {
			// empty buckets advance the clock but are not persisted
			continue
		}
		s.queue.Enqueue(c)
		s.cacheLatest(ctx, c)
	}
	if s.metrics != nil {
		s.metrics.RecordQueueDepth(s.exchange, s.queue.Len())
	}

	if err := s.queue.Flush(ctx); err != nil {
		s.log.Warn("base flush failed", applogger.Error(err))
	}

	// Each pair cascades at its own candle's boundary. A backlogged pair can
	// close a later bucket than the rest of the tick, so the boundary is never
	// shared across pairs.
	for _, c := range closed {
		s.rollup.CascadeAt(ctx, c.Exchange, c.Symbol, c.CloseTimeMs+1, s.htfIntervals)
	}

	if err := s.queue.Flush(ctx); err != nil {
		s.log.Warn("rollup flush failed", applogger.Error(err))
	}
	s.queue.Prune(s.queueMaxSize)
}

func (s *LiveService) cacheLatest(ctx context.Context, c *models.ClosedCandle) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetLatest(ctx, c); err != nil {
		s.log.Debug("latest-candle cache update failed",
			applogger.String("symbol", c.Symbol),
			applogger.Error(err),
		)
	}
}

// Shutdown stops the schedule, closes the stream, and drains what it can.
func (s *LiveService) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}
	if err := s.stream.Close(); err != nil {
		s.log.Warn("stream close error", applogger.Error(err))
	}

	// close whatever is open and try one last flush
	for _, c := range s.coord.CloseAll() {
		if c.Volume > 0 {
			s.queue.Enqueue(c)
		}
	}
	s.coord.Shutdown()

	if err := s.queue.Flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
