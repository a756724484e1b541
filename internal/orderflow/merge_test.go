package orderflow

import (
	"testing"
	"time"

	"orderflow/internal/domain/models"
)

func baseCandle(openMs int64, trades []struct {
	passiveBid bool
	qty, price float64
}) *models.ClosedCandle {
	clock := NewSimulatedClock(time.UnixMilli(openMs))
	agg, _ := NewAggregator("binance", "BTCUSDT", models.OneMinute, clock)
	for _, tr := range trades {
		agg.ProcessTrade(tr.passiveBid, tr.qty, tr.price)
	}
	return agg.CloseActive()
}

func TestMergeSums(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	a := baseCandle(open, []struct {
		passiveBid bool
		qty, price float64
	}{{false, 1, 100}, {true, 2, 101}})
	b := baseCandle(open+60_000, []struct {
		passiveBid bool
		qty, price float64
	}{{false, 4, 101}, {true, 1, 99}})

	merged, err := Merge([]*models.ClosedCandle{a, b}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if merged.Interval != models.FiveMinutes {
		t.Fatalf("interval = %s", merged.Interval)
	}
	if merged.OpenTimeMs != a.OpenTimeMs || merged.CloseTimeMs != b.CloseTimeMs {
		t.Fatalf("window = [%d, %d]", merged.OpenTimeMs, merged.CloseTimeMs)
	}
	if merged.Volume != 8 {
		t.Fatalf("volume = %v, want 8", merged.Volume)
	}
	if merged.VolumeDelta != 2 {
		t.Fatalf("volumeDelta = %v, want 2", merged.VolumeDelta)
	}
	if merged.High != 101 || merged.Low != 99 {
		t.Fatalf("high/low = %v/%v, want 101/99", merged.High, merged.Low)
	}
	if merged.Close != 99 {
		t.Fatalf("close = %v, want 99 (last trade of last candle)", merged.Close)
	}

	// levels are a union: 99, 100 and 101 with 101 summed across both candles
	if len(merged.PriceLevels) != 3 {
		t.Fatalf("levels = %d, want 3", len(merged.PriceLevels))
	}
	var l101 models.ClosedPriceLevel
	for _, l := range merged.PriceLevels {
		if l.Price == 101 {
			l101 = l
		}
	}
	if l101.VolSumBid != 4 || l101.VolSumAsk != 2 {
		t.Fatalf("level 101 = %+v, want bid 4 ask 2", l101)
	}

	// imbalance recomputed from summed sums: bid 5 of 8
	if merged.BidImbalancePercent != 62.5 {
		t.Fatalf("bidImbalancePercent = %v, want 62.5", merged.BidImbalancePercent)
	}
}

func TestMergeAssociativity(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	mk := func(i int64, qty, price float64, passive bool) *models.ClosedCandle {
		return baseCandle(open+i*60_000, []struct {
			passiveBid bool
			qty, price float64
		}{{passive, qty, price}})
	}
	a := mk(0, 1, 100, false)
	b := mk(1, 2, 101, true)
	c := mk(2, 3, 99.5, false)

	ab, err := Merge([]*models.ClosedCandle{a, b}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge ab: %v", err)
	}
	left, err := Merge([]*models.ClosedCandle{ab, c}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge (ab)c: %v", err)
	}
	flat, err := Merge([]*models.ClosedCandle{a, b, c}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge abc: %v", err)
	}

	if left.Volume != flat.Volume || left.VolumeDelta != flat.VolumeDelta ||
		left.AggressiveBid != flat.AggressiveBid || left.AggressiveAsk != flat.AggressiveAsk ||
		left.High != flat.High || left.Low != flat.Low || left.Close != flat.Close ||
		left.OpenTimeMs != flat.OpenTimeMs || left.CloseTimeMs != flat.CloseTimeMs ||
		left.BidImbalancePercent != flat.BidImbalancePercent {
		t.Fatalf("merge not associative:\n(ab)c = %+v\nabc   = %+v", left, flat)
	}
	if len(left.PriceLevels) != len(flat.PriceLevels) {
		t.Fatalf("level count differs: %d vs %d", len(left.PriceLevels), len(flat.PriceLevels))
	}
	for i := range left.PriceLevels {
		if left.PriceLevels[i] != flat.PriceLevels[i] {
			t.Fatalf("level %d differs: %+v vs %+v", i, left.PriceLevels[i], flat.PriceLevels[i])
		}
	}
}

func TestMergeSingleton(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	a := baseCandle(open, []struct {
		passiveBid bool
		qty, price float64
	}{{false, 2, 100}})

	merged, err := Merge([]*models.ClosedCandle{a}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Volume != a.Volume || merged.High != a.High || merged.Low != a.Low || merged.Close != a.Close {
		t.Fatalf("singleton merge changed values: %+v", merged)
	}
	if merged.ID == a.ID {
		t.Fatalf("merged candle must get a fresh id")
	}
}

func TestMergeEmptyLastWindow(t *testing.T) {
	clock := NewSimulatedClock(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))
	agg, _ := NewAggregator("binance", "BTCUSDT", models.OneMinute, clock)
	agg.ProcessTrade(false, 1, 100)
	a := agg.CloseActive()
	empty := agg.CloseActive() // next bucket, zero trades

	merged, err := Merge([]*models.ClosedCandle{a, empty}, models.FiveMinutes)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Close != 100 {
		t.Fatalf("close = %v, want carried 100", merged.Close)
	}
	if merged.High != 100 || merged.Low != 100 {
		t.Fatalf("high/low = %v/%v, want 100/100 (empty window ignored)", merged.High, merged.Low)
	}
}

func TestMergeNoCandles(t *testing.T) {
	if _, err := Merge(nil, models.FiveMinutes); err != ErrNoCandles {
		t.Fatalf("err = %v, want ErrNoCandles", err)
	}
}

func TestMergeUnknownTarget(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	a := baseCandle(open, []struct {
		passiveBid bool
		qty, price float64
	}{{false, 1, 100}})
	if _, err := Merge([]*models.ClosedCandle{a}, models.Interval("3m")); err == nil {
		t.Fatalf("expected error for unknown target interval")
	}
}
