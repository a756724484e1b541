package repository

import (
	"context"
	"time"

	"orderflow/internal/domain/models"
)

// TradeStream is a live exchange connection producing normalized trades.
type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.TradeEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// CandleStore is the durable storage collaborator. BatchUpsert is idempotent
// keyed on (exchange, symbol, interval, openTime): repeated delivery of the
// same logical candle must not create duplicates. Partial success (a subset
// of ids confirmed) is the normal case, not an error.
type CandleStore interface {
	Init(ctx context.Context) error
	BatchUpsert(ctx context.Context, candles []*models.ClosedCandle) ([]string, error)
	// GetCandles returns candles ordered by openTime ascending. Zero start or
	// end means unbounded on that side.
	GetCandles(ctx context.Context, exchange, symbol string, interval models.Interval, start, end time.Time) ([]*models.ClosedCandle, error)
	GetTimestampRange(ctx context.Context, exchange, symbol string) (map[models.Interval]models.TimestampRange, error)
	// FindGaps reports consecutive stored candles whose open-time delta
	// exceeds the threshold.
	FindGaps(ctx context.Context, exchange, symbol string, interval models.Interval, threshold time.Duration) ([]models.Gap, error)
	PruneOldData(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Notifier fans out closed-candle notifications. Publish is fire-and-forget:
// failures are logged by the caller, never retried.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Close() error
}

// CandleCache keeps the latest closed candle per series for cheap reads.
type CandleCache interface {
	SetLatest(ctx context.Context, candle *models.ClosedCandle) error
	GetLatest(ctx context.Context, exchange, symbol string, interval models.Interval) (*models.ClosedCandle, error)
	Close() error
}

// Metrics records operational counters for the aggregation pipeline.
type Metrics interface {
	RecordTrade(exchange, symbol string)
	RecordCandleClosed(exchange, symbol, interval string)
	RecordFlush(candles int, seconds float64)
	RecordQueueDepth(exchange string, depth int)
	RecordPruned(candles int)
	RecordError(kind string)
}
