package model

import (
	"context"
	"time"
)

// These interfaces decouple the collector and analysis jobs from concrete
// storage implementations (SQLite, Redis).

// CandleStore is the durable candle storage port. Writes to the same
// (instrument, interval) are serialized by the implementation; reads are
// always safe to run concurrently with writes.
type CandleStore interface {
	// UpsertCandles idempotently inserts a batch. Candles failing sanity
	// validation are rejected and logged; the rest still commit. A stored
	// provisional row is overwritten only by a non-provisional revision.
	// Returns the number of rows written.
	UpsertCandles(ctx context.Context, candles []Candle) (int, error)

	// ReadRange returns candles with open times in [from, to), ordered by
	// open time ascending.
	ReadRange(ctx context.Context, instrument string, interval Interval, from, to time.Time) ([]Candle, error)

	// FindGaps walks the expected fixed-step sequence between from and to
	// and returns every missing open time, ascending.
	FindGaps(ctx context.Context, instrument string, interval Interval, from, to time.Time) ([]time.Time, error)

	// Latest returns the newest stored candle, if any.
	Latest(ctx context.Context, instrument string, interval Interval) (Candle, bool, error)

	// Close releases underlying resources.
	Close() error
}

// PatternLog is the append-only pattern detection history port.
type PatternLog interface {
	// AppendPatterns records detections. Re-appending an existing
	// (instrument, kind, detected_at) key is a no-op.
	AppendPatterns(ctx context.Context, patterns []Pattern) error

	// ReadPatterns returns past detections of one kind strictly before the
	// given time, ordered by detection time ascending.
	ReadPatterns(ctx context.Context, instrument string, kind PatternKind, before time.Time) ([]Pattern, error)
}

// SnapshotPublisher pushes finished analytics snapshots to the cache layer
// for external consumers. Publishing is best-effort: the registry remains
// the source of truth within the process.
type SnapshotPublisher interface {
	PublishAnalytics(ctx context.Context, instrument string, payload []byte) error
	Close() error
}
