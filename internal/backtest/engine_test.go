package backtest

import (
	"errors"
	"testing"
	"time"

	"crypto-analyzer/internal/model"
)

var day0 = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

func dailySeries(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Instrument: "BTC",
			Interval:   model.Interval1d,
			OpenTime:   day0.AddDate(0, 0, i),
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Source:     "binance",
		}
	}
	return out
}

// risingSeries goes 100 to 200 linearly over 70 daily candles, giving 10
// weekly DCA buy points.
func risingSeries() []model.Candle {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 + float64(i)*100.0/69.0
	}
	return dailySeries(closes)
}

func TestRunDeterministic(t *testing.T) {
	candles := risingSeries()
	strat := FixedDCA{Base: 100, Cadence: 7}

	a, err := Run("BTC", strat, candles)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := Run("BTC", strat, candles)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a != b {
		t.Errorf("repeated runs differ:\n%+v\n%+v", a, b)
	}
	if a.ROI != b.ROI || a.Sharpe != b.Sharpe || a.Sortino != b.Sortino ||
		a.MaxDrawdown != b.MaxDrawdown || a.VaR95 != b.VaR95 {
		t.Error("risk statistics differ between identical runs")
	}
}

func TestFixedDCAUnderperformsLumpSumInUptrend(t *testing.T) {
	candles := risingSeries()

	dca, err := Run("BTC", FixedDCA{Base: 100, Cadence: 7}, candles)
	if err != nil {
		t.Fatalf("dca: %v", err)
	}
	lump, err := Run("BTC", LumpSum{Budget: 1000}, candles)
	if err != nil {
		t.Fatalf("lump: %v", err)
	}

	if dca.Buys != 10 {
		t.Fatalf("expected 10 weekly buys, got %d", dca.Buys)
	}
	if dca.ROI <= 0 || dca.ROI >= 100 {
		t.Errorf("DCA ROI on a 100 to 200 uptrend should be strictly inside (0,100), got %f", dca.ROI)
	}
	if dca.ROI >= lump.ROI {
		t.Errorf("DCA (%.2f%%) should underperform lump sum (%.2f%%) in a pure uptrend",
			dca.ROI, lump.ROI)
	}
	// Lump sum rides the full move from 100 to 200.
	if lump.ROI < 99 || lump.ROI > 101 {
		t.Errorf("lump sum ROI should be ~100%%, got %f", lump.ROI)
	}
}

func TestSmartDCABuysMoreInFear(t *testing.T) {
	candles := risingSeries()

	fear := func(time.Time) float64 { return 10 } // extreme fear, 2x
	greed := func(time.Time) float64 { return 90 } // extreme greed, 0.25x

	fearRes, err := Run("BTC", SmartDCA{Base: 100, Cadence: 7, Sentiment: fear}, candles)
	if err != nil {
		t.Fatalf("fear run: %v", err)
	}
	greedRes, err := Run("BTC", SmartDCA{Base: 100, Cadence: 7, Sentiment: greed}, candles)
	if err != nil {
		t.Fatalf("greed run: %v", err)
	}

	if fearRes.Invested != 2000 {
		t.Errorf("extreme fear should deploy 2x base per buy, invested %f", fearRes.Invested)
	}
	if greedRes.Invested != 250 {
		t.Errorf("extreme greed should deploy 0.25x base per buy, invested %f", greedRes.Invested)
	}

	// Neutral sentiment is exactly FixedDCA.
	neutral, _ := Run("BTC", SmartDCA{Base: 100, Cadence: 7}, candles)
	fixed, _ := Run("BTC", FixedDCA{Base: 100, Cadence: 7}, candles)
	if neutral.Invested != fixed.Invested || neutral.ROI != fixed.ROI {
		t.Error("neutral SmartDCA should match FixedDCA")
	}
}

func TestRunInsufficientHistory(t *testing.T) {
	candles := dailySeries([]float64{100, 101, 102})
	_, err := Run("BTC", FixedDCA{Base: 100, Cadence: 7}, candles)
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 200, trough 120: 40% drawdown.
	if got := maxDrawdown([]float64{100, 200, 150, 120, 180}); got != 40 {
		t.Errorf("expected 40%% drawdown, got %f", got)
	}
	if got := maxDrawdown([]float64{100, 110, 120}); got != 0 {
		t.Errorf("expected zero drawdown on rising values, got %f", got)
	}
}

func TestVar95HistoricalPercentile(t *testing.T) {
	// 20 returns, one disaster at -10%: the 5th percentile picks it up.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[7] = -0.10
	if got := var95(returns); got != 10 {
		t.Errorf("expected VaR95 of 10, got %f", got)
	}
}

func TestRiskMetricsFlatSeries(t *testing.T) {
	candles := dailySeries(constant(40, 100))
	res, err := Run("BTC", FixedDCA{Base: 100, Cadence: 7}, candles)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ROI != 0 {
		t.Errorf("flat series ROI should be 0, got %f", res.ROI)
	}
	if res.Sharpe != 0 || res.Sortino != 0 {
		t.Errorf("zero-variance series should yield zero ratios, got sharpe=%f sortino=%f",
			res.Sharpe, res.Sortino)
	}
	if res.MaxDrawdown != 0 {
		t.Errorf("flat series drawdown should be 0, got %f", res.MaxDrawdown)
	}
}

func TestCompareMatchesCapital(t *testing.T) {
	candles := risingSeries()
	results, err := Compare("BTC", candles, 100, 7, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	byName := make(map[string]model.BacktestResult, 3)
	for _, r := range results {
		byName[r.Strategy] = r
	}
	if byName["fixed_dca"].Invested != byName["lump_sum"].Invested {
		t.Errorf("capital mismatch: dca %f vs lump %f",
			byName["fixed_dca"].Invested, byName["lump_sum"].Invested)
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
