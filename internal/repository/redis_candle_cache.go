package repository

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/domain/models"
	"orderflow/internal/domain/repository"
	"orderflow/pkg/cache"
)

// ErrNoLatestCandle is returned when no candle has been cached for a series.
var ErrNoLatestCandle = errors.New("no latest candle for series")

// RedisCandleCache keeps the most recent closed candle per
// (exchange, symbol, interval) for cheap API reads.
type RedisCandleCache struct {
	cache cache.Service
}

// NewRedisCandleCache creates a cache-backed latest-candle store.
func NewRedisCandleCache(c cache.Service) repository.CandleCache {
	return &RedisCandleCache{cache: c}
}

func (r *RedisCandleCache) SetLatest(ctx context.Context, candle *models.ClosedCandle) error {
	key := latestKey(candle.Exchange, candle.Symbol, candle.Interval)
	return r.cache.Set(ctx, key, candle, 0)
}

func (r *RedisCandleCache) GetLatest(ctx context.Context, exchange, symbol string, interval models.Interval) (*models.ClosedCandle, error) {
	var candle models.ClosedCandle
	err := r.cache.Get(ctx, latestKey(exchange, symbol, interval), &candle)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNoLatestCandle
		}
		return nil, err
	}
	return &candle, nil
}

func (r *RedisCandleCache) Close() error {
	return r.cache.Close()
}

func latestKey(exchange, symbol string, interval models.Interval) string {
	return fmt.Sprintf("latest:%s:%s:%s", exchange, symbol, interval)
}
