package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientHistory signals that a computation was requested over a
// window shorter than its minimum lookback. Callers treat it as an
// explicit "not ready" result, never as a numeric zero.
var ErrInsufficientHistory = errors.New("insufficient history")

// InsufficientHistoryError carries the lookback requirement. Unwraps to
// ErrInsufficientHistory so callers can match with errors.Is.
type InsufficientHistoryError struct {
	Op   string
	Need int
	Have int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: insufficient history: need %d candles, have %d", e.Op, e.Need, e.Have)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// SourceError is a transient failure from a single upstream source
// (network, rate limit, 5xx). Recovered by fallback or retry; never
// surfaced past the collector.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// AllSourcesError aggregates the per-source failures of an exhausted
// fallback chain for one sync cycle.
type AllSourcesError struct {
	Instrument string
	Interval   Interval
	Attempts   []*SourceError
}

func (e *AllSourcesError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("all sources failed for %s %s: %s",
		e.Instrument, e.Interval, strings.Join(parts, "; "))
}

// IntegrityError marks a candle violating OHLC sanity or timestamp
// alignment. The offending candle is rejected and logged; the rest of its
// batch still commits.
type IntegrityError struct {
	Candle string
	Reason string
}

func (e *IntegrityError) Error() string { return fmt.Sprintf("candle %s: %s", e.Candle, e.Reason) }

// ConfigError rejects invalid configuration at load time, before any job
// is scheduled.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %s", e.Field, e.Reason) }
