package orderflow

import (
	"fmt"
	"time"

	"orderflow/internal/domain/models"
)

// AggregationRule describes how one higher-timeframe candle is synthesized:
// exactly Count consecutive candles of Base.
type AggregationRule struct {
	Base  models.Interval
	Count int
}

// aggregationRules maps each target interval to the lower-interval window
// that builds it. Every base is strictly smaller than its target, so the
// table forms a DAG rooted at 1m.
var aggregationRules = map[models.Interval]AggregationRule{
	models.FiveMinutes:    {Base: models.OneMinute, Count: 5},
	models.FifteenMinutes: {Base: models.FiveMinutes, Count: 3},
	models.ThirtyMinutes:  {Base: models.FifteenMinutes, Count: 2},
	models.OneHour:        {Base: models.ThirtyMinutes, Count: 2},
	models.TwoHours:       {Base: models.OneHour, Count: 2},
	models.FourHours:      {Base: models.OneHour, Count: 4},
	models.SixHours:       {Base: models.OneHour, Count: 6},
	models.EightHours:     {Base: models.OneHour, Count: 8},
	models.TwelveHours:    {Base: models.OneHour, Count: 12},
	models.OneDay:         {Base: models.OneHour, Count: 24},
	models.OneWeek:        {Base: models.OneDay, Count: 7},
	models.OneMonth:       {Base: models.OneWeek, Count: 4},
}

// RuleFor returns the aggregation rule for a target interval.
func RuleFor(target models.Interval) (AggregationRule, bool) {
	r, ok := aggregationRules[target]
	return r, ok
}

// ValidateRules checks the rule table at configuration time: every rule's
// base must be a known interval and reachable down to 1m without cycles.
func ValidateRules() error {
	for target, rule := range aggregationRules {
		if rule.Count < 2 {
			return fmt.Errorf("rule %s: count %d", target, rule.Count)
		}
		seen := map[models.Interval]bool{target: true}
		cur := rule.Base
		for cur != models.OneMinute {
			if seen[cur] {
				return fmt.Errorf("rule %s: cycle through %s", target, cur)
			}
			seen[cur] = true
			next, ok := aggregationRules[cur]
			if !ok {
				return fmt.Errorf("rule %s: base %s has no rule", target, cur)
			}
			cur = next.Base
		}
	}
	return nil
}

// TriggeredIntervals reports which candidate intervals have a boundary at
// nextOpen (the just-closed candle's closeTimeMs + 1). Results keep the
// candidates' order, which callers supply smallest to largest so a fresh HTF
// candle can cascade into a larger one. All boundary math is UTC; weeks
// anchor on Monday 00:00.
func TriggeredIntervals(nextOpen time.Time, candidates []models.Interval) []models.Interval {
	t := nextOpen.UTC()
	totalMinutes := t.Hour()*60 + t.Minute()
	midnight := t.Hour() == 0 && t.Minute() == 0

	triggered := make([]models.Interval, 0, len(candidates))
	for _, interval := range candidates {
		switch interval {
		case models.OneWeek:
			if midnight && t.Weekday() == time.Monday {
				triggered = append(triggered, interval)
			}
		case models.OneMonth:
			if midnight && t.Day() == 1 {
				triggered = append(triggered, interval)
			}
		default:
			if mins, ok := interval.Minutes(); ok && totalMinutes%mins == 0 {
				triggered = append(triggered, interval)
			}
		}
	}
	return triggered
}
