package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"crypto-analyzer/internal/model"
)

const (
	// defaultRecentLimit is how many candles a periodic sync pulls; wide
	// enough to cover any downtime shorter than the backfill cadence.
	defaultRecentLimit = 100

	// backfillRetryBudget caps failed fetch attempts per Backfill call.
	// Exhausting it abandons the rest of the gaps until the next tick.
	backfillRetryBudget = 5
)

// Collector syncs exchange candles into the store with source failover.
// Sources are tried in order; data from any source after the first is
// stored provisional.
type Collector struct {
	store   model.CandleStore
	sources []Source

	// Optional hooks, wired to metrics by the daemon.
	OnStored        func(instrument string, interval model.Interval, n int)
	OnSourceFailure func(source string)

	now func() time.Time
}

func New(store model.CandleStore, sources ...Source) (*Collector, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("collector: at least one source required")
	}
	return &Collector{store: store, sources: sources, now: time.Now}, nil
}

// SourceNames returns the configured source names in failover order.
func (c *Collector) SourceNames() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Sync fetches the most recent candles and upserts them. The first
// source that answers wins; its position decides the provisional flag.
// When every source fails the returned error aggregates all attempts.
func (c *Collector) Sync(ctx context.Context, instrument string, interval model.Interval) (int, error) {
	var attempts []*model.SourceError
	for i, src := range c.sources {
		candles, err := src.Recent(ctx, instrument, interval, defaultRecentLimit)
		if err != nil {
			attempts = append(attempts, sourceErr(src.Name(), err))
			c.noteSourceFailure(src.Name())
			log.Printf("[collector] %s %s: source %s failed: %v", instrument, interval, src.Name(), err)
			continue
		}
		candles = c.closedOnly(candles, interval.Step())
		provisional := i > 0
		for j := range candles {
			candles[j].Provisional = provisional
		}
		n, err := c.store.UpsertCandles(ctx, candles)
		if err != nil {
			return 0, fmt.Errorf("sync %s %s: %w", instrument, interval, err)
		}
		if c.OnStored != nil {
			c.OnStored(instrument, interval, n)
		}
		return n, nil
	}
	return 0, &model.AllSourcesError{Instrument: instrument, Interval: interval, Attempts: attempts}
}

// Backfill finds holes in the stored series over [from, to) and fills
// them chunk by chunk. Fetch failures fail over to the next source; a
// partial fill is fine, the missing open times surface again on the
// next run. Only store errors are returned.
func (c *Collector) Backfill(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) (int, error) {
	gaps, err := c.store.FindGaps(ctx, instrument, interval, from, to)
	if err != nil {
		return 0, fmt.Errorf("backfill %s %s: %w", instrument, interval, err)
	}
	if len(gaps) == 0 {
		return 0, nil
	}

	chunks := chunkGaps(gaps, interval.Step(), c.minPageLimit())
	log.Printf("[collector] %s %s: backfilling %d missing candles in %d chunks",
		instrument, interval, len(gaps), len(chunks))

	budget := backfillRetryBudget
	total := 0
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, ok := c.fillChunk(ctx, instrument, interval, ch, &budget)
		if n < 0 {
			return total, fmt.Errorf("backfill %s %s: store failed", instrument, interval)
		}
		total += n
		if !ok {
			log.Printf("[collector] %s %s: retry budget exhausted, %d candles filled, deferring rest",
				instrument, interval, total)
			return total, nil
		}
	}
	return total, nil
}

// closedOnly drops candles whose period has not finished yet. Exchange
// REST endpoints include the currently-open bucket in their latest page;
// storing it non-provisional would freeze a mid-period price as the
// final close, since committed rows are immutable.
func (c *Collector) closedOnly(candles []model.Candle, step time.Duration) []model.Candle {
	now := c.now()
	out := candles[:0]
	for _, cd := range candles {
		if !cd.OpenTime.Add(step).After(now) {
			out = append(out, cd)
		}
	}
	return out
}

type gapChunk struct {
	from, to time.Time // [from, to)
}

// fillChunk tries each source for one chunk, charging failures against
// the shared budget. Returns candles stored and whether the budget
// survived; a negative count signals a store error.
func (c *Collector) fillChunk(ctx context.Context, instrument string, interval model.Interval, ch gapChunk, budget *int) (int, bool) {
	for i, src := range c.sources {
		if *budget <= 0 {
			return 0, false
		}
		candles, err := src.Range(ctx, instrument, interval, ch.from, ch.to)
		if err != nil {
			*budget--
			c.noteSourceFailure(src.Name())
			log.Printf("[collector] %s %s: backfill chunk %s: source %s failed: %v",
				instrument, interval, ch.from.Format(time.RFC3339), src.Name(), err)
			continue
		}
		candles = c.closedOnly(candles, interval.Step())
		// An empty page is as useless as a failed one; some sources answer
		// 200 with no rows before their listing date. Charge the budget and
		// let the next source try the chunk.
		if len(candles) == 0 {
			*budget--
			log.Printf("[collector] %s %s: backfill chunk %s: source %s returned no candles",
				instrument, interval, ch.from.Format(time.RFC3339), src.Name())
			continue
		}
		provisional := i > 0
		for j := range candles {
			candles[j].Provisional = provisional
		}
		n, err := c.store.UpsertCandles(ctx, candles)
		if err != nil {
			log.Printf("[collector] %s %s: backfill store failed: %v", instrument, interval, err)
			return -1, false
		}
		if c.OnStored != nil {
			c.OnStored(instrument, interval, n)
		}
		return n, true
	}
	return 0, *budget > 0
}

// chunkGaps groups missing open times into contiguous [from, to) runs
// capped at pageLimit candles each.
func chunkGaps(gaps []time.Time, step time.Duration, pageLimit int) []gapChunk {
	if len(gaps) == 0 {
		return nil
	}
	var chunks []gapChunk
	start := gaps[0]
	count := 1
	for i := 1; i < len(gaps); i++ {
		contiguous := gaps[i].Sub(gaps[i-1]) == step
		if contiguous && count < pageLimit {
			count++
			continue
		}
		chunks = append(chunks, gapChunk{from: start, to: gaps[i-1].Add(step)})
		start = gaps[i]
		count = 1
	}
	chunks = append(chunks, gapChunk{from: start, to: gaps[len(gaps)-1].Add(step)})
	return chunks
}

func (c *Collector) minPageLimit() int {
	min := c.sources[0].PageLimit()
	for _, s := range c.sources[1:] {
		if l := s.PageLimit(); l < min {
			min = l
		}
	}
	return min
}

func (c *Collector) noteSourceFailure(name string) {
	if c.OnSourceFailure != nil {
		c.OnSourceFailure(name)
	}
}

// sourceErr normalizes an error into a SourceError for aggregation.
func sourceErr(name string, err error) *model.SourceError {
	if se, ok := err.(*model.SourceError); ok {
		return se
	}
	return &model.SourceError{Source: name, Err: err}
}
