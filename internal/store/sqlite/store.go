// Package sqlite implements the durable candle store and the append-only
// pattern detection log on a single SQLite database in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto-analyzer/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns all persisted state. Writes to the same (instrument,
// interval) are serialized by a per-key mutex on top of SQLite's own
// locking; WAL mode keeps readers unblocked during commits.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Optional hooks, wired to metrics by the daemon.
	OnReject func()
	OnCommit func(d time.Duration)
}

// Open opens (creating if needed) the database at path with WAL mode and
// the schema applied.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// A small pool: one writer at a time is enforced above this layer,
	// readers may overlap.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			instrument  TEXT    NOT NULL,
			interval    TEXT    NOT NULL,
			open_time   INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL    NOT NULL DEFAULT 0,
			source      TEXT    NOT NULL,
			provisional INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (instrument, interval, open_time)
		);

		CREATE TABLE IF NOT EXISTS pattern_log (
			instrument   TEXT    NOT NULL,
			kind         TEXT    NOT NULL,
			detected_at  INTEGER NOT NULL,
			window_start INTEGER NOT NULL,
			price        REAL    NOT NULL,
			PRIMARY KEY (instrument, kind, detected_at)
		);
	`)
	return err
}

// lockFor returns the write mutex for one (instrument, interval) key.
func (s *Store) lockFor(instrument string, interval model.Interval) *sync.Mutex {
	key := instrument + ":" + string(interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// UpsertCandles inserts a batch in a single transaction per (instrument,
// interval) group. Re-inserting an identical candle is a no-op; a stored
// provisional row is overwritten only by a non-provisional revision.
// Candles failing sanity validation are rejected and logged while the
// rest of the batch still commits. Returns the number of rows written.
func (s *Store) UpsertCandles(ctx context.Context, candles []model.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	// Group by write-serialization key. Batches almost always carry a
	// single key; the grouping keeps mixed batches correct.
	groups := make(map[string][]model.Candle)
	order := make([]string, 0, 1)
	for _, c := range candles {
		key := c.Instrument + ":" + string(c.Interval)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	total := 0
	for _, key := range order {
		group := groups[key]
		lock := s.lockFor(group[0].Instrument, group[0].Interval)
		lock.Lock()
		n, err := s.upsertGroup(ctx, group)
		lock.Unlock()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) upsertGroup(ctx context.Context, candles []model.Candle) (int, error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO candles (instrument, interval, open_time, open, high, low, close, volume, source, provisional)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instrument, interval, open_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			source = excluded.source, provisional = excluded.provisional
		WHERE candles.provisional = 1 AND excluded.provisional = 0
	`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	stored := 0
	for i := range candles {
		c := &candles[i]
		if err := c.Validate(); err != nil {
			// Integrity failures skip the candle, not the batch.
			log.Printf("[sqlite] rejected candle: %v", err)
			if s.OnReject != nil {
				s.OnReject()
			}
			continue
		}
		res, err := stmt.Exec(
			c.Instrument, string(c.Interval), c.OpenTime.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.Source, boolToInt(c.Provisional),
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite upsert %s: %w", c.Key(), err)
		}
		// Conflicts that hit an immutable committed row affect no rows
		// and do not count as written.
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if s.OnCommit != nil {
		s.OnCommit(time.Since(start))
	}
	return stored, nil
}

// ReadRange returns candles with open times in [from, to), ordered by
// open time ascending.
func (s *Store) ReadRange(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, interval, open_time, open, high, low, close, volume, source, provisional
		FROM candles
		WHERE instrument = ? AND interval = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC
	`, instrument, string(interval), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// FindGaps walks the expected fixed-step sequence between from and to and
// returns every missing open time. The grid anchors on the earliest stored
// candle in range when one exists, so sources with shifted weekly opens
// stay consistent with their own history.
func (s *Store) FindGaps(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]time.Time, error) {
	step := interval.Step()
	if step <= 0 {
		return nil, &model.ConfigError{Field: "interval", Reason: "invalid interval " + string(interval)}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time FROM candles
		WHERE instrument = ? AND interval = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC
	`, instrument, string(interval), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query open times: %w", err)
	}
	defer rows.Close()

	stored := make(map[int64]bool)
	var earliest int64 = -1
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		if earliest < 0 {
			earliest = ts
		}
		stored[ts] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stepSec := int64(step / time.Second)
	fromSec, toSec := from.Unix(), to.Unix()

	// Anchor the expected grid.
	var anchor int64
	if earliest >= 0 {
		anchor = earliest
		for anchor-stepSec >= fromSec {
			anchor -= stepSec
		}
	} else {
		anchor = alignUp(fromSec, stepSec)
	}

	var gaps []time.Time
	for ts := anchor; ts < toSec; ts += stepSec {
		if !stored[ts] {
			gaps = append(gaps, time.Unix(ts, 0).UTC())
		}
	}
	return gaps, nil
}

func alignUp(ts, step int64) int64 {
	if step >= 86400 {
		// Daily/weekly buckets open at midnight UTC.
		step = 86400
	}
	if rem := ts % step; rem != 0 {
		return ts + step - rem
	}
	return ts
}

// Latest returns the newest stored candle for the key, if any.
func (s *Store) Latest(ctx context.Context, instrument string, interval model.Interval) (model.Candle, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instrument, interval, open_time, open, high, low, close, volume, source, provisional
		FROM candles
		WHERE instrument = ? AND interval = ?
		ORDER BY open_time DESC
		LIMIT 1
	`, instrument, string(interval))

	c, err := scanCandle(row)
	if err == sql.ErrNoRows {
		return model.Candle{}, false, nil
	}
	if err != nil {
		return model.Candle{}, false, err
	}
	return c, true, nil
}

// AppendPatterns records detections in the append-only log. Re-appending
// an existing (instrument, kind, detected_at) key is a no-op.
func (s *Store) AppendPatterns(ctx context.Context, patterns []model.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO pattern_log (instrument, kind, detected_at, window_start, price)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range patterns {
		if _, err := stmt.Exec(
			p.Instrument, string(p.Kind), p.DetectedAt.Unix(), p.WindowStart.Unix(), p.Price,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite append pattern: %w", err)
		}
	}
	return tx.Commit()
}

// ReadPatterns returns past detections of one kind strictly before the
// given time, ordered by detection time ascending.
func (s *Store) ReadPatterns(ctx context.Context, instrument string, kind model.PatternKind, before time.Time) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, kind, detected_at, window_start, price
		FROM pattern_log
		WHERE instrument = ? AND kind = ? AND detected_at < ?
		ORDER BY detected_at ASC
	`, instrument, string(kind), before.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query pattern_log: %w", err)
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var p model.Pattern
		var kindStr string
		var detected, winStart int64
		if err := rows.Scan(&p.Instrument, &kindStr, &detected, &winStart, &p.Price); err != nil {
			return nil, err
		}
		p.Kind = model.PatternKind(kindStr)
		p.DetectedAt = time.Unix(detected, 0).UTC()
		p.WindowStart = time.Unix(winStart, 0).UTC()
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandle(row rowScanner) (model.Candle, error) {
	var c model.Candle
	var interval string
	var openTime int64
	var provisional int
	err := row.Scan(
		&c.Instrument, &interval, &openTime,
		&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		&c.Source, &provisional,
	)
	if err != nil {
		return model.Candle{}, err
	}
	c.Interval = model.Interval(interval)
	c.OpenTime = time.Unix(openTime, 0).UTC()
	c.Provisional = provisional == 1
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
