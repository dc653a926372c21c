package backtest

import (
	"fmt"
	"math"

	"crypto-analyzer/internal/model"
)

// minCandles is the shortest replay the engine accepts; anything less
// produces risk statistics too noisy to compare.
const minCandles = 30

// Run replays the candle slice chronologically under the strategy and
// scores the outcome. The input must be ordered oldest first; no wall
// clock is consulted anywhere, so repeated runs over the same slice are
// byte-identical.
func Run(instrument string, strat Strategy, candles []model.Candle) (model.BacktestResult, error) {
	if len(candles) < minCandles {
		return model.BacktestResult{}, &model.InsufficientHistoryError{
			Op:   "backtest " + strat.Name(),
			Need: minCandles,
			Have: len(candles),
		}
	}

	var invested, coins, prevValue float64
	buys := 0
	values := make([]float64, len(candles))
	// Per-period returns are contribution-adjusted: each step's return is
	// measured on the position held before that step's buy, so deposits
	// never masquerade as gains. Sharpe, Sortino, and VaR all consume this
	// one series.
	returns := make([]float64, 0, len(candles))
	for i := range candles {
		c := &candles[i]
		if prevValue > 0 && c.Close > 0 {
			returns = append(returns, coins*c.Close/prevValue-1)
		}
		if amt := strat.Amount(i, *c); amt > 0 && c.Close > 0 {
			coins += amt / c.Close
			invested += amt
			buys++
		}
		values[i] = coins * c.Close
		prevValue = values[i]
	}
	if invested == 0 {
		return model.BacktestResult{}, fmt.Errorf("backtest %s: strategy made no purchases", strat.Name())
	}

	first, last := candles[0], candles[len(candles)-1]
	final := values[len(values)-1]
	roi := (final - invested) / invested * 100

	perYear := first.Interval.PeriodsPerYear()
	years := float64(len(candles)) / perYear
	annualized := 0.0
	if years > 0 && final > 0 {
		annualized = (math.Pow(final/invested, 1/years) - 1) * 100
	}

	return model.BacktestResult{
		Instrument:    instrument,
		Strategy:      strat.Name(),
		PeriodStart:   first.OpenTime,
		PeriodEnd:     last.OpenTime,
		Invested:      invested,
		FinalValue:    final,
		Coins:         coins,
		AvgBuyPrice:   invested / coins,
		Buys:          buys,
		ROI:           roi,
		AnnualizedROI: annualized,
		MaxDrawdown:   maxDrawdown(values),
		Sharpe:        sharpe(returns, perYear),
		Sortino:       sortino(returns, perYear),
		VaR95:         var95(returns),
	}, nil
}

// Compare runs the three standard strategies over the same candle slice
// with matched total capital: the lump-sum budget equals the sum the
// fixed-cadence strategies would deploy at the base amount.
func Compare(instrument string, candles []model.Candle, base float64, cadence int, sentiment SentimentFunc) ([]model.BacktestResult, error) {
	if cadence <= 0 {
		return nil, &model.ConfigError{Field: "cadence", Reason: "must be positive"}
	}
	steps := (len(candles) + cadence - 1) / cadence

	strategies := []Strategy{
		FixedDCA{Base: base, Cadence: cadence},
		SmartDCA{Base: base, Cadence: cadence, Sentiment: sentiment},
		LumpSum{Budget: base * float64(steps)},
	}

	results := make([]model.BacktestResult, 0, len(strategies))
	for _, s := range strategies {
		res, err := Run(instrument, s, candles)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
