// Package orderflow implements the streaming footprint-candle engine: the
// per-symbol aggregator that folds trade prints into open candles, the merge
// and roll-up rules that build higher timeframes, and the at-least-once
// persistence queue that decouples aggregation from storage.
package orderflow

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/domain/models"
)

// Aggregator owns exactly one active (open) candle for a single
// (exchange, symbol, interval) series. It is not safe for concurrent use;
// the coordinator serializes trades and close ticks onto one goroutine per
// series.
type Aggregator struct {
	exchange   string
	symbol     string
	interval   models.Interval
	intervalMs int64
	clock      Clock

	active *models.Candle
}

// NewAggregator creates an aggregator for one series. An unknown interval is
// a configuration error, rejected here rather than per trade.
func NewAggregator(exchange, symbol string, interval models.Interval, clock Clock) (*Aggregator, error) {
	ms, err := interval.DurationMs()
	if err != nil {
		return nil, fmt.Errorf("aggregator %s %s: %w", exchange, symbol, err)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Aggregator{
		exchange:   exchange,
		symbol:     symbol,
		interval:   interval,
		intervalMs: ms,
		clock:      clock,
	}, nil
}

// BucketStart truncates t to the aggregator's interval grid. Buckets are
// anchored to wall-clock boundaries, never to the first trade, so an interval
// with zero trades still has a well-defined window.
func (a *Aggregator) BucketStart(t time.Time) time.Time {
	ms := t.UnixMilli()
	return time.UnixMilli(ms - ms%a.intervalMs).UTC()
}

// ProcessTrade folds one trade print into the active candle, creating the
// candle anchored at the current bucket start if none is open. Input
// validation is the adapter's responsibility; this is pure accumulation.
func (a *Aggregator) ProcessTrade(isPassiveBid bool, quantity, price float64) {
	if a.active == nil {
		a.openCandle(a.BucketStart(a.clock.Now()))
	}

	c := a.active
	first := len(c.PriceLevels) == 0
	c.Volume += quantity

	// A passive bid means the aggressor sold: negative delta, ask side.
	if isPassiveBid {
		c.VolumeDelta -= quantity
		c.AggressiveAsk += quantity
	} else {
		c.VolumeDelta += quantity
		c.AggressiveBid += quantity
	}

	level, ok := c.PriceLevels[price]
	if !ok {
		level = &models.PriceLevel{}
		c.PriceLevels[price] = level
	}
	if isPassiveBid {
		level.VolSumAsk += quantity
	} else {
		level.VolSumBid += quantity
	}

	if first || price > c.High {
		c.High = price
	}
	if first || price < c.Low {
		c.Low = price
	}
	c.Close = price
}

// CloseActive freezes the active candle, opens the next one at the following
// bucket boundary, and returns the closed candle. It returns nil when no
// candle was open (no trade has ever arrived for this series).
func (a *Aggregator) CloseActive() *models.ClosedCandle {
	c := a.active
	if c == nil {
		return nil
	}

	closed := &models.ClosedCandle{
		ID:            c.ID,
		Exchange:      c.Exchange,
		Symbol:        c.Symbol,
		Interval:      c.Interval,
		OpenTime:      c.OpenTime,
		OpenTimeMs:    c.OpenTimeMs,
		CloseTime:     c.CloseTime,
		CloseTimeMs:   c.CloseTimeMs,
		AggressiveBid: c.AggressiveBid,
		AggressiveAsk: c.AggressiveAsk,
		Volume:        c.Volume,
		VolumeDelta:   c.VolumeDelta,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		PriceLevels:   freezeLevels(c.PriceLevels),
		IsClosed:      true,
	}
	closed.BidImbalancePercent = imbalancePercent(c.AggressiveBid, c.AggressiveAsk)

	a.openCandle(time.UnixMilli(c.CloseTimeMs + 1).UTC())
	return closed
}

// Active returns the open candle, or nil. Exposed for inspection only;
// callers must not mutate it.
func (a *Aggregator) Active() *models.Candle { return a.active }

// Interval returns the series interval.
func (a *Aggregator) Interval() models.Interval { return a.interval }

func (a *Aggregator) openCandle(start time.Time) {
	closeMs := start.UnixMilli() + a.intervalMs - 1
	a.active = &models.Candle{
		ID:          uuid.NewString(),
		Exchange:    a.exchange,
		Symbol:      a.symbol,
		Interval:    a.interval,
		OpenTime:    start,
		OpenTimeMs:  start.UnixMilli(),
		CloseTime:   time.UnixMilli(closeMs).UTC(),
		CloseTimeMs: closeMs,
		PriceLevels: make(map[float64]*models.PriceLevel),
	}
}

// freezeLevels converts the accumulation map into the closed representation,
// descending by price for deterministic serialization.
func freezeLevels(levels map[float64]*models.PriceLevel) []models.ClosedPriceLevel {
	out := make([]models.ClosedPriceLevel, 0, len(levels))
	for price, l := range levels {
		out = append(out, models.ClosedPriceLevel{
			Price:               price,
			VolSumBid:           l.VolSumBid,
			VolSumAsk:           l.VolSumAsk,
			BidImbalancePercent: imbalancePercent(l.VolSumBid, l.VolSumAsk),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

// imbalancePercent is bid volume as a percentage of total, rounded to two
// decimals. Zero total yields zero, not NaN.
func imbalancePercent(bid, ask float64) float64 {
	total := bid + ask
	if total == 0 {
		return 0
	}
	return math.Round(bid/total*10000) / 100
}
