package pattern

import (
	"context"
	"fmt"
	"log"
	"time"

	"crypto-analyzer/internal/model"
)

// outcomeHorizon is how many daily candles after a detection the realized
// return is measured over.
const outcomeHorizon = 30

// Enricher attaches historical outcome statistics to fresh detections by
// querying the append-only pattern log, and can seed the log from stored
// history. Statistics are recomputed from the log on every detection, not
// cached, so replays are deterministic.
type Enricher struct {
	log   model.PatternLog
	store model.CandleStore
}

// NewEnricher creates an Enricher over the given log and candle store.
func NewEnricher(patternLog model.PatternLog, store model.CandleStore) *Enricher {
	return &Enricher{log: patternLog, store: store}
}

// Enrich fills the Historical* fields of p from past detections of the
// same kind for the same instrument, strictly before p's detection time.
// Detections too recent to have a full outcome window are skipped.
func (e *Enricher) Enrich(ctx context.Context, p *model.Pattern) error {
	past, err := e.log.ReadPatterns(ctx, p.Instrument, p.Kind, p.DetectedAt)
	if err != nil {
		return fmt.Errorf("enrich %s/%s: %w", p.Instrument, p.Kind, err)
	}

	wins, samples := 0, 0
	var totalReturn float64
	for _, prev := range past {
		ret, ok, err := e.realizedReturn(ctx, prev)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		samples++
		totalReturn += ret
		if ret > 0 {
			wins++
		}
	}

	p.SampleSize = samples
	if samples > 0 {
		p.HistoricalWinRate = float64(wins) / float64(samples)
		p.HistoricalAvgReturn = totalReturn / float64(samples)
	}
	return nil
}

// realizedReturn computes the percentage price change over the outcome
// horizon following a past detection. ok is false when the horizon is not
// yet fully covered by stored candles.
func (e *Enricher) realizedReturn(ctx context.Context, p model.Pattern) (float64, bool, error) {
	if p.Price <= 0 {
		return 0, false, nil
	}
	horizonEnd := p.DetectedAt.AddDate(0, 0, outcomeHorizon)
	candles, err := e.store.ReadRange(ctx, p.Instrument, model.Interval1d,
		horizonEnd, horizonEnd.AddDate(0, 0, 7))
	if err != nil {
		return 0, false, err
	}
	if len(candles) == 0 {
		return 0, false, nil
	}
	after := candles[0].Close
	return (after - p.Price) / p.Price * 100, true, nil
}

// BackfillHistory replays detection over stored daily candles so outcome
// statistics exist before the first live scan. Scans a sliding window
// ending at every stored candle; the log's primary key dedupes repeats.
func (e *Enricher) BackfillHistory(ctx context.Context, instrument string, window int) error {
	candles, err := e.store.ReadRange(ctx, instrument, model.Interval1d,
		time.Unix(0, 0).UTC(), time.Now().UTC().AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("backfill pattern history %s: %w", instrument, err)
	}
	if len(candles) <= window {
		return nil
	}

	appended := 0
	for end := window; end <= len(candles); end++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detections := Detect(instrument, candles[end-window:end])
		if len(detections) == 0 {
			continue
		}
		if err := e.log.AppendPatterns(ctx, detections); err != nil {
			return err
		}
		appended += len(detections)
	}
	log.Printf("[pattern] backfilled history for %s: %d detections over %d candles",
		instrument, appended, len(candles))
	return nil
}
