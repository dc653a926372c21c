// Package collector pulls OHLCV candles from public exchange REST APIs
// into the candle store. Sources are ordered: the first is the primary,
// and anything fetched from a fallback is stored provisional so a later
// primary fetch can supersede it.
package collector

import (
	"context"
	"time"

	"crypto-analyzer/internal/model"
)

// Source is a read-only candle feed for one exchange.
type Source interface {
	Name() string

	// SymbolFor maps a logical instrument ("BTC") to the exchange's own
	// pair notation.
	SymbolFor(instrument string) string

	// PageLimit is the most candles a single request may return.
	PageLimit() int

	// Recent returns the latest candles for the instrument, oldest first.
	Recent(ctx context.Context, instrument string, interval model.Interval, limit int) ([]model.Candle, error)

	// Range returns candles with open times in [from, to), oldest first.
	// A single call never exceeds PageLimit candles.
	Range(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]model.Candle, error)
}
