package models

import (
	"strconv"
	"time"
)

// PriceLevel accumulates traded volume at a single price while a candle is
// open. Both sums are non-negative; a level exists iff at least one trade
// touched that price during the candle's life.
type PriceLevel struct {
	VolSumBid float64 `json:"volSumBid"`
	VolSumAsk float64 `json:"volSumAsk"`
}

// ClosedPriceLevel is a frozen price level with its derived imbalance.
// BidImbalancePercent is computed exactly once at close time.
type ClosedPriceLevel struct {
	Price               float64 `json:"price"`
	VolSumBid           float64 `json:"volSumBid"`
	VolSumAsk           float64 `json:"volSumAsk"`
	BidImbalancePercent float64 `json:"bidImbalancePercent"`
}

// Candle is the single open footprint candle an aggregator is building.
// Invariants maintained by the aggregator:
//
//	CloseTimeMs == OpenTimeMs + intervalMs - 1 (fixed at creation)
//	AggressiveBid + AggressiveAsk == Volume
//	High >= every trade price seen, Low <= every trade price seen
type Candle struct {
	ID            string                `json:"id"`
	Exchange      string                `json:"exchange"`
	Symbol        string                `json:"symbol"`
	Interval      Interval              `json:"interval"`
	OpenTime      time.Time             `json:"openTime"`
	OpenTimeMs    int64                 `json:"openTimeMs"`
	CloseTime     time.Time             `json:"closeTime"`
	CloseTimeMs   int64                 `json:"closeTimeMs"`
	AggressiveBid float64               `json:"aggressiveBid"`
	AggressiveAsk float64               `json:"aggressiveAsk"`
	Volume        float64               `json:"volume"`
	VolumeDelta   float64               `json:"volumeDelta"`
	High          float64               `json:"high"`
	Low           float64               `json:"low"`
	Close         float64               `json:"close"`
	PriceLevels   map[float64]*PriceLevel `json:"-"`
	IsClosed      bool                  `json:"isClosed"`
}

// ClosedCandle is an immutable candle after its single open->closed
// transition. Price levels are frozen in descending price order for
// deterministic serialization.
type ClosedCandle struct {
	ID                  string             `json:"id"`
	Exchange            string             `json:"exchange"`
	Symbol              string             `json:"symbol"`
	Interval            Interval           `json:"interval"`
	OpenTime            time.Time          `json:"openTime"`
	OpenTimeMs          int64              `json:"openTimeMs"`
	CloseTime           time.Time          `json:"closeTime"`
	CloseTimeMs         int64              `json:"closeTimeMs"`
	AggressiveBid       float64            `json:"aggressiveBid"`
	AggressiveAsk       float64            `json:"aggressiveAsk"`
	Volume              float64            `json:"volume"`
	VolumeDelta         float64            `json:"volumeDelta"`
	High                float64            `json:"high"`
	Low                 float64            `json:"low"`
	Close               float64            `json:"close"`
	BidImbalancePercent float64            `json:"bidImbalancePercent"`
	PriceLevels         []ClosedPriceLevel `json:"priceLevels"`
	IsClosed            bool               `json:"isClosed"`
	DidPersistToStore   bool               `json:"-"`
}

// Topic is the notification routing key for a closed candle:
// {exchange}.{symbol}.{interval}.{openTimeMs}.
func (c *ClosedCandle) Topic() string {
	return c.Exchange + "." + c.Symbol + "." + string(c.Interval) + "." + strconv.FormatInt(c.OpenTimeMs, 10)
}

// TimestampRange is the first/last stored open time for one series.
type TimestampRange struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// Gap marks a hole between consecutive stored candles: the open time at which
// the hole was detected and the delta to the previous candle.
type Gap struct {
	At    time.Time     `json:"at"`
	Delta time.Duration `json:"delta"`
}
