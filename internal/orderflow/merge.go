package orderflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"orderflow/internal/domain/models"
)

// ErrNoCandles is returned when Merge is called with an empty input.
var ErrNoCandles = errors.New("merge: no candles")

// Merge combines chronologically contiguous closed candles into one candle of
// the target interval. The caller is responsible for supplying exactly the
// window the aggregation rule demands; Merge itself only requires a non-empty
// input. The numeric result is order-independent (sums, min, max); Close is
// taken from the chronologically last candle.
func Merge(candles []*models.ClosedCandle, target models.Interval) (*models.ClosedCandle, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	if !target.Valid() {
		return nil, fmt.Errorf("merge: unknown target interval %q", target)
	}

	first := candles[0]
	out := &models.ClosedCandle{
		ID:                uuid.NewString(),
		Exchange:          first.Exchange,
		Symbol:            first.Symbol,
		Interval:          target,
		OpenTime:          first.OpenTime,
		OpenTimeMs:        first.OpenTimeMs,
		CloseTime:         first.CloseTime,
		CloseTimeMs:       first.CloseTimeMs,
		IsClosed:          true,
		DidPersistToStore: false,
	}

	levels := make(map[float64]*models.PriceLevel, len(first.PriceLevels))
	var last *models.ClosedCandle

	for _, c := range candles {
		if c.OpenTimeMs < out.OpenTimeMs {
			out.OpenTime = c.OpenTime
			out.OpenTimeMs = c.OpenTimeMs
		}
		if c.CloseTimeMs > out.CloseTimeMs {
			out.CloseTime = c.CloseTime
			out.CloseTimeMs = c.CloseTimeMs
		}
		if last == nil || c.OpenTimeMs > last.OpenTimeMs {
			last = c
		}

		out.Volume += c.Volume
		out.VolumeDelta += c.VolumeDelta
		out.AggressiveBid += c.AggressiveBid
		out.AggressiveAsk += c.AggressiveAsk

		if c.Volume > 0 {
			if out.High == 0 || c.High > out.High {
				out.High = c.High
			}
			if out.Low == 0 || (c.Low > 0 && c.Low < out.Low) {
				out.Low = c.Low
			}
		}

		for _, l := range c.PriceLevels {
			merged, ok := levels[l.Price]
			if !ok {
				merged = &models.PriceLevel{}
				levels[l.Price] = merged
			}
			merged.VolSumBid += l.VolSumBid
			merged.VolSumAsk += l.VolSumAsk
		}
	}

	if last.Volume > 0 || last.Close != 0 {
		out.Close = last.Close
	} else {
		// Last window was empty; carry the most recent known close.
		for i := len(candles) - 1; i >= 0; i-- {
			if candles[i].Close != 0 {
				out.Close = candles[i].Close
				break
			}
		}
	}

	// Imbalance is recomputed from the summed sums. Averaging per-candle
	// percentages would weight empty windows and is wrong.
	out.BidImbalancePercent = imbalancePercent(out.AggressiveBid, out.AggressiveAsk)
	out.PriceLevels = freezeLevels(levels)

	return out, nil
}
