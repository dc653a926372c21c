package backtest

import (
	"math"
	"sort"
)

// riskFreeAnnual is the annual risk-free rate backing Sharpe and Sortino.
const riskFreeAnnual = 0.04

// sharpe is mean excess return over standard deviation, annualized by the
// sampling frequency. Zero when the series has no variance.
func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}
	rf := riskFreeAnnual / periodsPerYear
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return (mean(returns) - rf) / sd * math.Sqrt(periodsPerYear)
}

// sortino replaces the denominator with downside deviation: the standard
// deviation of negative returns only.
func sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := stddev(downside)
	if dd == 0 {
		return 0
	}
	rf := riskFreeAnnual / periodsPerYear
	return (mean(returns) - rf) / dd * math.Sqrt(periodsPerYear)
}

// maxDrawdown is the largest peak-to-trough decline in the value series,
// as a percentage of the peak.
func maxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// var95 is the 5th percentile of the historical return distribution,
// reported as a positive percentage loss. Historical simulation, not
// parametric.
func var95(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	idx := int(0.05 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return math.Abs(sorted[idx]) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}
