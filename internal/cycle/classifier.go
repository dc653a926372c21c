package cycle

import (
	"context"
	"fmt"
	"time"

	"crypto-analyzer/internal/indicator"
	"crypto-analyzer/internal/model"
)

// Classification thresholds. Drawdown bands are checked before time
// bands; every boundary comparison is half-open so an input exactly at a
// threshold resolves to the later phase.
const (
	euphoriaMaxDrawdown = 5.0  // drawdown under 5% of the all-time high
	bullMaxDrawdown     = 20.0 // drawdown under 20%
	deepMinDrawdown     = 80.0 // drawdown of 80% or more

	rsiCapitulation = 30.0

	lateBullDays = 730 // two years after the halving ends the bull case

	// Time bands for mid-range drawdowns, days since halving.
	accumulationDays = 180
	earlyBullDays    = 365
	bullRunDays      = 540
	distributionDays = 730
	earlyBearDays    = 1095
)

// minDailyCandles is the minimum daily history Evaluate accepts: enough
// for a meaningful all-time high and a seeded RSI.
const minDailyCandles = 30

// Classify maps (days since halving, drawdown from all-time high, daily
// RSI) onto one of the eight ordered phases.
//
// Tie-break rule: zero days since the halving with zero drawdown
// classifies as euphoria (the drawdown bands win over the time bands, and
// a sub-5% drawdown is euphoric by definition).
func Classify(daysSinceHalving int, drawdownPct, rsi float64) model.CyclePhase {
	switch {
	case drawdownPct < euphoriaMaxDrawdown:
		return model.PhaseEuphoria
	case drawdownPct < bullMaxDrawdown:
		if daysSinceHalving >= 0 && daysSinceHalving < lateBullDays {
			return model.PhaseBullRun
		}
		return model.PhaseDistribution
	case drawdownPct >= deepMinDrawdown:
		if rsi < rsiCapitulation {
			return model.PhaseCapitulation
		}
		return model.PhaseAccumulation
	}

	// Mid-range drawdown: position in the four-year clock decides.
	switch {
	case daysSinceHalving < 0:
		return model.PhaseAccumulation
	case daysSinceHalving < accumulationDays:
		return model.PhaseAccumulation
	case daysSinceHalving < earlyBullDays:
		return model.PhaseEarlyBull
	case daysSinceHalving < bullRunDays:
		return model.PhaseBullRun
	case daysSinceHalving < distributionDays:
		return model.PhaseDistribution
	case daysSinceHalving < earlyBearDays:
		return model.PhaseEarlyBear
	default:
		return model.PhaseBear
	}
}

// phaseInfo carries the qualitative risk level and recommendation tag per
// phase, indexed by model.CyclePhase ordinal.
var phaseInfo = [...]struct {
	risk           string
	recommendation string
}{
	model.PhaseAccumulation: {"low", "accumulate"},
	model.PhaseEarlyBull:    {"low", "buy_dips"},
	model.PhaseBullRun:      {"medium", "hold"},
	model.PhaseEuphoria:     {"very_high", "take_profit"},
	model.PhaseDistribution: {"high", "reduce_exposure"},
	model.PhaseEarlyBear:    {"high", "caution"},
	model.PhaseBear:         {"medium", "wait"},
	model.PhaseCapitulation: {"low", "accumulate_aggressively"},
}

// Classifier builds full cycle reports from stored daily candles.
type Classifier struct {
	store model.CandleStore
}

// NewClassifier creates a Classifier over the candle store.
func NewClassifier(store model.CandleStore) *Classifier {
	return &Classifier{store: store}
}

// Evaluate classifies the instrument as of asOf using its entire stored
// daily history (the all-time high needs the full series).
func (c *Classifier) Evaluate(ctx context.Context, instrument string, asOf time.Time) (model.CycleInfo, error) {
	daily, err := c.store.ReadRange(ctx, instrument, model.Interval1d,
		time.Unix(0, 0).UTC(), asOf.AddDate(0, 0, 1))
	if err != nil {
		return model.CycleInfo{}, fmt.Errorf("cycle evaluate %s: %w", instrument, err)
	}
	if len(daily) < minDailyCandles {
		return model.CycleInfo{}, &model.InsufficientHistoryError{
			Op:   "cycle evaluate",
			Need: minDailyCandles,
			Have: len(daily),
		}
	}

	var ath float64
	closes := make([]float64, len(daily))
	for i := range daily {
		closes[i] = daily[i].Close
		if daily[i].Close > ath {
			ath = daily[i].Close
		}
	}
	last := daily[len(daily)-1].Close
	drawdown := 0.0
	if ath > 0 {
		drawdown = (ath - last) / ath * 100
	}

	rsi := indicator.RSISeries(closes, 14)
	lastRSI := rsi[len(rsi)-1]

	days := DaysSinceHalving(asOf)
	phase := Classify(days, drawdown, lastRSI)
	info := phaseInfo[phase]

	return model.CycleInfo{
		Instrument:     instrument,
		AsOf:           asOf,
		Phase:          phase,
		Position:       CyclePosition(asOf),
		DaysSinceEvent: days,
		DaysToEvent:    DaysToHalving(asOf),
		DrawdownPct:    drawdown,
		RiskLevel:      info.risk,
		Recommendation: info.recommendation,
	}, nil
}
