// Package backtest replays stored candles under pluggable accumulation
// strategies and scores the outcome with return and risk statistics.
// Everything here is a pure transform over the input slice: identical
// candles and parameters produce byte-identical results.
package backtest

import (
	"time"

	"crypto-analyzer/internal/model"
)

// Strategy sizes the simulated buy at each candle of a replay. A zero
// amount means no purchase at that step.
type Strategy interface {
	Name() string
	Amount(step int, candle model.Candle) float64
}

// FixedDCA buys a constant amount every cadence candles, starting at the
// first.
type FixedDCA struct {
	Base    float64
	Cadence int
}

func (s FixedDCA) Name() string { return "fixed_dca" }

func (s FixedDCA) Amount(step int, _ model.Candle) float64 {
	if s.Cadence > 0 && step%s.Cadence == 0 {
		return s.Base
	}
	return 0
}

// SentimentFunc returns a market sentiment reading in [0,100] for a point
// in time (0 = extreme fear, 100 = extreme greed). Implementations must
// be deterministic over historical timestamps.
type SentimentFunc func(t time.Time) float64

// SmartDCA scales the base amount by the concurrent sentiment reading:
// heavy buying in extreme fear, light buying in greed. A nil Sentiment
// reads neutral 50 everywhere, making SmartDCA equivalent to FixedDCA.
type SmartDCA struct {
	Base      float64
	Cadence   int
	Sentiment SentimentFunc
}

func (s SmartDCA) Name() string { return "smart_dca" }

func (s SmartDCA) Amount(step int, c model.Candle) float64 {
	if s.Cadence <= 0 || step%s.Cadence != 0 {
		return 0
	}
	reading := 50.0
	if s.Sentiment != nil {
		reading = s.Sentiment(c.OpenTime)
	}
	return s.Base * sentimentMultiplier(reading)
}

// sentimentMultiplier maps a fear/greed reading onto a buy-size multiple.
func sentimentMultiplier(v float64) float64 {
	switch {
	case v < 20:
		return 2.0
	case v < 40:
		return 1.5
	case v < 60:
		return 1.0
	case v < 80:
		return 0.5
	default:
		return 0.25
	}
}

// LumpSum deploys the entire budget at the first candle.
type LumpSum struct {
	Budget float64
}

func (s LumpSum) Name() string { return "lump_sum" }

func (s LumpSum) Amount(step int, _ model.Candle) float64 {
	if step == 0 {
		return s.Budget
	}
	return 0
}
