package util

import (
	"strconv"
	"time"
)

// TruncateMs truncates a unix-millisecond timestamp down to a multiple of
// widthMs.
func TruncateMs(ms, widthMs int64) int64 {
	return ms - ms%widthMs
}

// Truncate truncates t down to the widthMs grid, in UTC.
func Truncate(t time.Time, widthMs int64) time.Time {
	return time.UnixMilli(TruncateMs(t.UnixMilli(), widthMs)).UTC()
}

// StartOfDay returns midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateString formats t as yyyy-mm-dd in UTC.
func DateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseTime tries RFC3339, RFC3339Nano, yyyy-mm-dd, and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// DaysBetween lists the UTC day starts from start to end inclusive.
func DaysBetween(start, end time.Time) []time.Time {
	start = StartOfDay(start)
	end = StartOfDay(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start)/(24*time.Hour))+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
