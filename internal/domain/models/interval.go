package models

import (
	"fmt"
	"time"
)

// Interval identifies a candle timeframe.
type Interval string

const (
	OneMinute      Interval = "1m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	OneHour        Interval = "1h"
	TwoHours       Interval = "2h"
	FourHours      Interval = "4h"
	SixHours       Interval = "6h"
	EightHours     Interval = "8h"
	TwelveHours    Interval = "12h"
	OneDay         Interval = "1d"
	OneWeek        Interval = "1w"
	OneMonth       Interval = "1M"
)

const (
	oneMinuteMs = int64(60 * 1000)
	oneHourMs   = oneMinuteMs * 60
	oneDayMs    = oneHourMs * 24
	// Fixed month size used by Binance klines; calendar alignment is handled
	// by the roll-up boundary rules, not by this width.
	oneMonthMs = int64(2592000000)
)

var intervalMs = map[Interval]int64{
	OneMinute:      oneMinuteMs,
	FiveMinutes:    oneMinuteMs * 5,
	FifteenMinutes: oneMinuteMs * 15,
	ThirtyMinutes:  oneMinuteMs * 30,
	OneHour:        oneHourMs,
	TwoHours:       oneHourMs * 2,
	FourHours:      oneHourMs * 4,
	SixHours:       oneHourMs * 6,
	EightHours:     oneHourMs * 8,
	TwelveHours:    oneHourMs * 12,
	OneDay:         oneDayMs,
	OneWeek:        oneDayMs * 7,
	OneMonth:       oneMonthMs,
}

// AllIntervals is ordered smallest to largest. Roll-up processing relies on
// this ordering so a freshly built HTF candle can feed an even larger one.
var AllIntervals = []Interval{
	OneMinute, FiveMinutes, FifteenMinutes, ThirtyMinutes,
	OneHour, TwoHours, FourHours, SixHours, EightHours, TwelveHours,
	OneDay, OneWeek, OneMonth,
}

// DurationMs returns the interval width in milliseconds.
func (i Interval) DurationMs() (int64, error) {
	ms, ok := intervalMs[i]
	if !ok {
		return 0, fmt.Errorf("unknown interval %q", i)
	}
	return ms, nil
}

// Duration returns the interval width as a time.Duration.
func (i Interval) Duration() (time.Duration, error) {
	ms, err := i.DurationMs()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Minutes returns the interval width in whole minutes for intervals at or
// below 1d. Calendar intervals (1w, 1M) report false: their boundaries are
// not expressible as a minutes-since-midnight modulus.
func (i Interval) Minutes() (int, bool) {
	switch i {
	case OneWeek, OneMonth:
		return 0, false
	}
	ms, ok := intervalMs[i]
	if !ok {
		return 0, false
	}
	return int(ms / oneMinuteMs), true
}

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	_, ok := intervalMs[i]
	return ok
}

func (i Interval) String() string { return string(i) }
