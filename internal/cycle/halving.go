// Package cycle classifies the long-horizon market phase from the
// distance to the nearest halving event and the drawdown from the
// all-time high.
package cycle

import "time"

// Halving reference dates at midnight UTC. Entries after the current date
// are projections and should be revised when the block schedule firms up.
var halvings = []time.Time{
	time.Date(2012, 11, 28, 0, 0, 0, 0, time.UTC),
	time.Date(2016, 7, 9, 0, 0, 0, 0, time.UTC),
	time.Date(2020, 5, 11, 0, 0, 0, 0, time.UTC),
	time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
	time.Date(2028, 4, 15, 0, 0, 0, 0, time.UTC),
	time.Date(2032, 4, 15, 0, 0, 0, 0, time.UTC),
}

// cycleLengthDays is the nominal four-year halving cycle.
const cycleLengthDays = 1460

// lastHalving returns the most recent halving at or before t.
func lastHalving(t time.Time) (time.Time, bool) {
	var last time.Time
	found := false
	for _, h := range halvings {
		if h.After(t) {
			break
		}
		last = h
		found = true
	}
	return last, found
}

// nextHalving returns the first halving strictly after t.
func nextHalving(t time.Time) (time.Time, bool) {
	for _, h := range halvings {
		if h.After(t) {
			return h, true
		}
	}
	return time.Time{}, false
}

// DaysSinceHalving returns full days elapsed since the most recent
// halving, or -1 when t predates the first entry.
func DaysSinceHalving(t time.Time) int {
	last, ok := lastHalving(t)
	if !ok {
		return -1
	}
	return int(t.Sub(last).Hours() / 24)
}

// DaysToHalving returns full days until the next halving, or -1 when the
// calendar is exhausted.
func DaysToHalving(t time.Time) int {
	next, ok := nextHalving(t)
	if !ok {
		return -1
	}
	return int(next.Sub(t).Hours() / 24)
}

// CyclePosition maps t onto [0,100] through the nominal four-year cycle.
func CyclePosition(t time.Time) float64 {
	days := DaysSinceHalving(t)
	if days < 0 {
		return 0
	}
	return float64(days%cycleLengthDays) / cycleLengthDays * 100
}
