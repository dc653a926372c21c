package model

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Interval is a candle bucket size expressed as a duration string
// ("4h", "1d", "1w"). Parsed with str2duration, which extends the stdlib
// syntax with day and week units.
type Interval string

const (
	Interval4h Interval = "4h"
	Interval1d Interval = "1d"
	Interval1w Interval = "1w"
)

// ConfluenceIntervals are the timeframes combined into the trend agreement
// score, ordered shortest to longest.
var ConfluenceIntervals = []Interval{Interval4h, Interval1d, Interval1w}

// ParseInterval validates an interval string at config load time.
func ParseInterval(s string) (Interval, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil || d <= 0 {
		return "", &ConfigError{Field: "interval", Reason: fmt.Sprintf("invalid interval %q", s)}
	}
	return Interval(s), nil
}

// Step returns the bucket length. Returns 0 for an interval that was never
// validated with ParseInterval.
func (iv Interval) Step() time.Duration {
	d, err := str2duration.ParseDuration(string(iv))
	if err != nil {
		return 0
	}
	return d
}

// Aligned reports whether t is a valid open time for the interval.
// Daily and weekly buckets open at midnight UTC; the weekly open weekday
// varies by source, so only day alignment is enforced for those.
func (iv Interval) Aligned(t time.Time) bool {
	step := iv.Step()
	if step <= 0 {
		return false
	}
	if step >= 24*time.Hour {
		return t.Unix()%86400 == 0
	}
	return t.Unix()%int64(step/time.Second) == 0
}

// PeriodsPerYear returns the sampling frequency used to annualize return
// statistics for this interval.
func (iv Interval) PeriodsPerYear() float64 {
	step := iv.Step()
	if step <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(step)
}
