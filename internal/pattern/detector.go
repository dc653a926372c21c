// Package pattern detects a closed set of chart patterns on the trailing
// candle window and maintains their append-only detection history with
// realized-outcome statistics.
package pattern

import (
	"crypto-analyzer/internal/indicator"
	"crypto-analyzer/internal/model"
)

// Detection thresholds. Fixed and documented: changing them invalidates
// the historical outcome statistics in the pattern log.
const (
	// Double top/bottom: the two peaks must be within this percentage of
	// each other, at least minPeakSeparation candles apart, with a trough
	// at least minTroughDepthPct below the lower peak between them. The
	// second peak must sit within recencyWindow candles of the scan end so
	// one peak pair fires exactly one detection.
	peakTolerancePct  = 2.0
	minPeakSeparation = 5
	minTroughDepthPct = 5.0
	recencyWindow     = 3

	rsiOversold   = 30.0
	rsiOverbought = 70.0

	minStreak   = 5
	minHighsRun = 3

	crossFast = 50
	crossSlow = 200

	extremaSpan = 2
)

// Detect scans the trailing candles (oldest first) and returns at most
// one detection per pattern kind, anchored at the final candle. Callers
// pass the same window on each scheduled scan; detections are deduped by
// the append-only log's primary key.
func Detect(instrument string, candles []model.Candle) []model.Pattern {
	if len(candles) < 2*extremaSpan+1 {
		return nil
	}

	closes := make([]float64, len(candles))
	for i := range candles {
		closes[i] = candles[i].Close
	}
	last := candles[len(candles)-1]
	base := model.Pattern{
		Instrument:  instrument,
		DetectedAt:  last.OpenTime,
		WindowStart: candles[0].OpenTime,
		Price:       last.Close,
	}

	var out []model.Pattern
	add := func(kind model.PatternKind, ok bool) {
		if ok {
			p := base
			p.Kind = kind
			out = append(out, p)
		}
	}

	add(model.PatternDoubleTop, doubleTop(closes))
	add(model.PatternDoubleBottom, doubleBottom(closes))

	goldenCross, deathCross := maCross(closes)
	add(model.PatternGoldenCross, goldenCross)
	add(model.PatternDeathCross, deathCross)

	if len(closes) > indicator.MinHistory/4 {
		rsi := indicator.RSISeries(closes, 14)
		lastRSI := rsi[len(rsi)-1]
		add(model.PatternRSIOversold, lastRSI > 0 && lastRSI < rsiOversold)
		add(model.PatternRSIOverbought, lastRSI > rsiOverbought)
	}

	upStreak, downStreak := streaks(closes)
	add(model.PatternBullishStreak, upStreak >= minStreak)
	add(model.PatternBearishStreak, downStreak >= minStreak)

	breakUp, breakDown := bandBreakout(closes)
	add(model.PatternBandBreakoutUp, breakUp)
	add(model.PatternBandBreakoutDown, breakDown)

	resBreak, supBreak := levelBreak(candles)
	add(model.PatternResistanceBreak, resBreak)
	add(model.PatternSupportBreak, supBreak)

	hh, ll := highsLowsRun(closes)
	add(model.PatternHigherHighs, hh)
	add(model.PatternLowerLows, ll)

	return out
}

// doubleTop checks the last two swing highs: near-equal peaks separated
// by a sufficiently deep trough, with the second peak near the scan end.
func doubleTop(closes []float64) bool {
	peaks := indicator.LocalMaxima(closes, extremaSpan)
	if len(peaks) < 2 {
		return false
	}
	a, b := peaks[len(peaks)-2], peaks[len(peaks)-1]
	if b < len(closes)-1-recencyWindow {
		return false
	}
	if b-a < minPeakSeparation {
		return false
	}
	pa, pb := closes[a], closes[b]
	lower := pa
	if pb < lower {
		lower = pb
	}
	if abs(pa-pb)/lower*100 > peakTolerancePct {
		return false
	}
	trough := closes[a]
	for i := a + 1; i < b; i++ {
		if closes[i] < trough {
			trough = closes[i]
		}
	}
	return (lower-trough)/lower*100 >= minTroughDepthPct
}

func doubleBottom(closes []float64) bool {
	troughs := indicator.LocalMinima(closes, extremaSpan)
	if len(troughs) < 2 {
		return false
	}
	a, b := troughs[len(troughs)-2], troughs[len(troughs)-1]
	if b < len(closes)-1-recencyWindow {
		return false
	}
	if b-a < minPeakSeparation {
		return false
	}
	pa, pb := closes[a], closes[b]
	lower := pa
	if pb < lower {
		lower = pb
	}
	if lower <= 0 || abs(pa-pb)/lower*100 > peakTolerancePct {
		return false
	}
	peak := closes[a]
	for i := a + 1; i < b; i++ {
		if closes[i] > peak {
			peak = closes[i]
		}
	}
	return (peak-lower)/lower*100 >= minTroughDepthPct
}

// maCross fires when the 50-period mean crossed the 200-period mean on
// the final candle.
func maCross(closes []float64) (golden, death bool) {
	if len(closes) < crossSlow+1 {
		return false, false
	}
	fast := indicator.SMASeries(closes, crossFast)
	slow := indicator.SMASeries(closes, crossSlow)
	n := len(closes) - 1
	prevFast, prevSlow := fast[n-1], slow[n-1]
	curFast, curSlow := fast[n], slow[n]
	if prevSlow == 0 {
		return false, false
	}
	golden = prevFast <= prevSlow && curFast > curSlow
	death = prevFast >= prevSlow && curFast < curSlow
	return golden, death
}

// streaks returns the length of the closing up-run and down-run ending at
// the final candle.
func streaks(closes []float64) (up, down int) {
	for i := len(closes) - 1; i > 0; i-- {
		if closes[i] > closes[i-1] {
			up++
		} else {
			break
		}
	}
	for i := len(closes) - 1; i > 0; i-- {
		if closes[i] < closes[i-1] {
			down++
		} else {
			break
		}
	}
	return up, down
}

// bandBreakout fires when the final close escapes the Bollinger bands
// computed over the preceding candles.
func bandBreakout(closes []float64) (breakUp, breakDown bool) {
	const period = 20
	if len(closes) < period+1 {
		return false, false
	}
	b := indicator.NewBollinger(period, 2.0)
	for _, c := range closes[:len(closes)-1] {
		b.Update(c)
	}
	if !b.Ready() {
		return false, false
	}
	upper, _, lower := b.Bands()
	if upper == lower {
		return false, false
	}
	last := closes[len(closes)-1]
	return last > upper, last < lower
}

// levelBreak fires when the final close crosses a clustered level derived
// from the preceding candles.
func levelBreak(candles []model.Candle) (resistance, support bool) {
	if len(candles) < 20 {
		return false, false
	}
	prior := candles[:len(candles)-1]
	highs := make([]float64, len(prior))
	lows := make([]float64, len(prior))
	for i := range prior {
		highs[i] = prior[i].High
		lows[i] = prior[i].Low
	}
	sup, res := indicator.Levels(highs, lows)

	last := candles[len(candles)-1].Close
	prev := prior[len(prior)-1].Close
	for _, lv := range res {
		if prev <= lv.Price && last > lv.Price {
			resistance = true
			break
		}
	}
	for _, lv := range sup {
		if prev >= lv.Price && last < lv.Price {
			support = true
			break
		}
	}
	return resistance, support
}

// highsLowsRun checks for minHighsRun consecutive rising swing highs or
// falling swing lows ending at the most recent extremum.
func highsLowsRun(closes []float64) (higherHighs, lowerLows bool) {
	peaks := indicator.LocalMaxima(closes, extremaSpan)
	if len(peaks) >= minHighsRun {
		higherHighs = true
		for i := len(peaks) - minHighsRun + 1; i < len(peaks); i++ {
			if closes[peaks[i]] <= closes[peaks[i-1]] {
				higherHighs = false
				break
			}
		}
	}
	troughs := indicator.LocalMinima(closes, extremaSpan)
	if len(troughs) >= minHighsRun {
		lowerLows = true
		for i := len(troughs) - minHighsRun + 1; i < len(troughs); i++ {
			if closes[troughs[i]] >= closes[troughs[i-1]] {
				lowerLows = false
				break
			}
		}
	}
	return higherHighs, lowerLows
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
