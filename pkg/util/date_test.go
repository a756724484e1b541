package util

import (
	"testing"
	"time"
)

func TestTruncateMs(t *testing.T) {
	const minute = int64(60_000)
	ts := time.Date(2024, 1, 2, 10, 30, 42, 123e6, time.UTC)

	if got := Truncate(ts, minute); !got.Equal(time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("Truncate minute = %v", got)
	}
	if got := Truncate(ts, 5*minute); !got.Equal(time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("Truncate 5m = %v", got)
	}
	if got := Truncate(ts, 60*minute); !got.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("Truncate 1h = %v", got)
	}

	aligned := time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)
	if got := Truncate(aligned, minute); !got.Equal(aligned) {
		t.Fatalf("aligned time must be a fixed point, got %v", got)
	}
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC)
	if got := StartOfDay(ts); !got.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartOfDay = %v", got)
	}
}

func TestDateString(t *testing.T) {
	ts := time.Date(2024, 3, 7, 15, 0, 0, 0, time.UTC)
	if got := DateString(ts); got != "2024-03-07" {
		t.Fatalf("DateString = %q", got)
	}
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 2, 3, 0, 0, 0, time.UTC)

	days := DaysBetween(start, end)
	if len(days) != 4 {
		t.Fatalf("days = %d, want 4", len(days))
	}
	if !days[0].Equal(time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)) ||
		!days[3].Equal(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range = %v .. %v", days[0], days[3])
	}

	if got := DaysBetween(end, start); got != nil {
		t.Fatalf("reversed range = %v, want nil", got)
	}
}
