package orderflow

import (
	"context"
	"reflect"
	"testing"
	"time"

	"orderflow/internal/domain/models"
)

var htfCandidates = []models.Interval{
	models.FiveMinutes, models.FifteenMinutes, models.ThirtyMinutes,
	models.OneHour, models.TwoHours, models.FourHours, models.SixHours,
	models.EightHours, models.TwelveHours, models.OneDay, models.OneWeek,
	models.OneMonth,
}

func TestTriggeredIntervals(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want []models.Interval
	}{
		{
			// 2024-01-01 is a Monday and the first of the month
			name: "monday month start midnight",
			at:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			want: htfCandidates,
		},
		{
			name: "five past",
			at:   time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC),
			want: []models.Interval{models.FiveMinutes},
		},
		{
			name: "half hour",
			at:   time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
			want: []models.Interval{models.FiveMinutes, models.FifteenMinutes, models.ThirtyMinutes},
		},
		{
			name: "quarter past",
			at:   time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC),
			want: []models.Interval{models.FiveMinutes, models.FifteenMinutes},
		},
		{
			name: "six o'clock",
			at:   time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
			want: []models.Interval{
				models.FiveMinutes, models.FifteenMinutes, models.ThirtyMinutes,
				models.OneHour, models.TwoHours, models.SixHours,
			},
		},
		{
			name: "tuesday midnight",
			at:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			want: []models.Interval{
				models.FiveMinutes, models.FifteenMinutes, models.ThirtyMinutes,
				models.OneHour, models.TwoHours, models.FourHours, models.SixHours,
				models.EightHours, models.TwelveHours, models.OneDay,
			},
		},
		{
			// 2024-04-01 is a Monday but not triggered as 1M+1w both? It is
			// both a Monday and the first: both fire.
			name: "monday first of april",
			at:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			want: htfCandidates,
		},
		{
			// 2024-02-01 is a Thursday: month fires, week does not
			name: "thursday first of february",
			at:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			want: []models.Interval{
				models.FiveMinutes, models.FifteenMinutes, models.ThirtyMinutes,
				models.OneHour, models.TwoHours, models.FourHours, models.SixHours,
				models.EightHours, models.TwelveHours, models.OneDay, models.OneMonth,
			},
		},
		{
			name: "plain minute",
			at:   time.Date(2024, 1, 1, 10, 31, 0, 0, time.UTC),
			want: []models.Interval{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TriggeredIntervals(tc.at, htfCandidates)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("TriggeredIntervals(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestTriggeredIntervalsKeepsCandidateOrder(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got := TriggeredIntervals(at, []models.Interval{models.OneHour, models.FiveMinutes})
	want := []models.Interval{models.OneHour, models.FiveMinutes}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want candidate order preserved %v", got, want)
	}
}

// windowStore serves stored candles filtered by series and open-time window.
type windowStore struct {
	fakeStore
	candles []*models.ClosedCandle
}

func (s *windowStore) GetCandles(_ context.Context, exchange, symbol string, interval models.Interval, start, end time.Time) ([]*models.ClosedCandle, error) {
	var out []*models.ClosedCandle
	for _, c := range s.candles {
		if c.Exchange != exchange || c.Symbol != symbol || c.Interval != interval {
			continue
		}
		if c.OpenTime.Before(start) || c.OpenTime.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func TestCascadeRequiresFullWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := &windowStore{}
	for m := 0; m < 4; m++ {
		store.candles = append(store.candles,
			queueCandle(base.Add(time.Duration(m)*time.Minute).UnixMilli(), models.OneMinute))
	}
	q := NewCandleQueue(store, nil, nil, newTestLogger(t))
	r := NewRollup(store, q, nil, newTestLogger(t), nil)
	boundary := base.Add(5 * time.Minute).UnixMilli()

	r.CascadeAt(context.Background(), "binance", "BTCUSDT", boundary, []models.Interval{models.FiveMinutes})
	if got := q.Len(); got != 0 {
		t.Fatalf("queue = %d, want 0: 4 of 5 base candles must not merge", got)
	}

	store.candles = append(store.candles,
		queueCandle(base.Add(4*time.Minute).UnixMilli(), models.OneMinute))
	r.CascadeAt(context.Background(), "binance", "BTCUSDT", boundary, []models.Interval{models.FiveMinutes})

	merged := q.Unpersisted()
	if len(merged) != 1 || merged[0].Interval != models.FiveMinutes {
		t.Fatalf("queue after full window = %d candles, want one 5m candle", len(merged))
	}
	if merged[0].OpenTimeMs != base.UnixMilli() || merged[0].Volume != 5 {
		t.Fatalf("merged open=%d volume=%v, want open=%d volume=5",
			merged[0].OpenTimeMs, merged[0].Volume, base.UnixMilli())
	}
}

func TestRuleTable(t *testing.T) {
	if err := ValidateRules(); err != nil {
		t.Fatalf("rule table invalid: %v", err)
	}

	rule, ok := RuleFor(models.OneDay)
	if !ok {
		t.Fatalf("no rule for 1d")
	}
	if rule.Base != models.OneHour || rule.Count != 24 {
		t.Fatalf("1d rule = %+v, want 24x1h", rule)
	}

	if _, ok := RuleFor(models.OneMinute); ok {
		t.Fatalf("1m is the root and must have no rule")
	}

	// every rule's window spans exactly the target width, the calendar
	// intervals excepted (their width is convention, not arithmetic)
	for target, want := range map[models.Interval]AggregationRule{
		models.FiveMinutes: {models.OneMinute, 5},
		models.OneHour:     {models.ThirtyMinutes, 2},
		models.OneMonth:    {models.OneWeek, 4},
	} {
		got, ok := RuleFor(target)
		if !ok || got != want {
			t.Fatalf("rule for %s = %+v (ok=%v), want %+v", target, got, ok, want)
		}
	}
}
