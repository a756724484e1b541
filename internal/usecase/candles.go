package usecase

import (
	"context"
	"time"

	"orderflow/internal/domain/models"
	drepo "orderflow/internal/domain/repository"
	xhttp "orderflow/pkg/http"
)

// CandleService answers read queries over stored footprint candles, serving
// the latest candle from cache when one is available.
type CandleService struct {
	store drepo.CandleStore
	cache drepo.CandleCache
}

// NewCandleService creates the candle query service. cache may be nil.
func NewCandleService(store drepo.CandleStore, cache drepo.CandleCache) *CandleService {
	return &CandleService{store: store, cache: cache}
}

// Candles returns stored candles ordered by open time ascending. Zero start
// or end leaves that side unbounded.
func (s *CandleService) Candles(ctx context.Context, exchange, symbol string, interval models.Interval, start, end time.Time) ([]*models.ClosedCandle, error) {
	if !interval.Valid() {
		return nil, xhttp.BadRequestErrorf("unknown interval %q", interval)
	}
	return s.store.GetCandles(ctx, exchange, symbol, interval, start, end)
}

// Latest returns the most recent closed candle for a series, preferring the
// cache and falling back to storage. Returns nil when the series is empty.
func (s *CandleService) Latest(ctx context.Context, exchange, symbol string, interval models.Interval) (*models.ClosedCandle, error) {
	if !interval.Valid() {
		return nil, xhttp.BadRequestErrorf("unknown interval %q", interval)
	}

	if s.cache != nil {
		if c, err := s.cache.GetLatest(ctx, exchange, symbol, interval); err == nil {
			return c, nil
		}
	}

	ranges, err := s.store.GetTimestampRange(ctx, exchange, symbol)
	if err != nil {
		return nil, err
	}
	r, ok := ranges[interval]
	if !ok {
		return nil, nil
	}
	candles, err := s.store.GetCandles(ctx, exchange, symbol, interval, r.Last, r.Last)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}
	return candles[len(candles)-1], nil
}

// Range returns the first/last stored open time per interval for a series.
func (s *CandleService) Range(ctx context.Context, exchange, symbol string) (map[models.Interval]models.TimestampRange, error) {
	return s.store.GetTimestampRange(ctx, exchange, symbol)
}

// Gaps returns holes in a stored series wider than threshold.
func (s *CandleService) Gaps(ctx context.Context, exchange, symbol string, interval models.Interval, threshold time.Duration) ([]models.Gap, error) {
	if !interval.Valid() {
		return nil, xhttp.BadRequestErrorf("unknown interval %q", interval)
	}
	return s.store.FindGaps(ctx, exchange, symbol, interval, threshold)
}

// Health reports storage liveness.
func (s *CandleService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
