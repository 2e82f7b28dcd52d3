package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for batch dates and result timestamps.
// Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock, in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}

// DefaultBatchDate returns the start of yesterday (UTC), the most recent day
// with complete Sentinel-5P coverage.
func DefaultBatchDate() time.Time {
	return BatchDay(Now().AddDate(0, 0, -1))
}

// BatchDay truncates t to midnight UTC.
func BatchDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateStamp formats a batch date as YYYYMMDD, the form used in file names.
func DateStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}
