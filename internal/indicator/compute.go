// Package indicator computes rolling technical indicators and the
// multi-timeframe confluence score from stored candles. All kernels are
// incremental O(1)-per-candle updates; Compute feeds a candle window
// through fresh kernels so results depend only on the input slice.
package indicator

import (
	"crypto-analyzer/internal/model"
)

// Standard periods.
const (
	smaShort = 20
	smaMid   = 50
	smaLong  = 200

	emaFast = 12
	emaSlow = 26

	rsiPeriod    = 14
	macdSignal   = 9
	bollPeriod   = 20
	bollStddevs  = 2.0
	atrPeriod    = 14
	levelsWindow = 100
)

// MinHistory is the minimum candle count Compute accepts: the longest
// rolling window among the standard indicators.
const MinHistory = smaLong

// Compute derives an IndicatorSnapshot from the trailing candle window,
// oldest first. Returns an InsufficientHistoryError instead of partial or
// zero-filled values when the window is shorter than MinHistory.
func Compute(instrument string, interval model.Interval, candles []model.Candle) (model.IndicatorSnapshot, error) {
	if len(candles) < MinHistory {
		return model.IndicatorSnapshot{}, &model.InsufficientHistoryError{
			Op:   "indicator compute",
			Need: MinHistory,
			Have: len(candles),
		}
	}

	sma := map[int]*SMA{
		smaShort: NewSMA(smaShort),
		smaMid:   NewSMA(smaMid),
		smaLong:  NewSMA(smaLong),
	}
	ema := map[int]*EMA{
		emaFast: NewEMA(emaFast),
		emaSlow: NewEMA(emaSlow),
	}
	rsi := NewRSI(rsiPeriod)
	macd := NewMACD(emaFast, emaSlow, macdSignal)
	boll := NewBollinger(bollPeriod, bollStddevs)
	atr := NewATR(atrPeriod)

	for i := range candles {
		c := &candles[i]
		for _, s := range sma {
			s.Update(c.Close)
		}
		for _, e := range ema {
			e.Update(c.Close)
		}
		rsi.Update(c.Close)
		macd.Update(c.Close)
		boll.Update(c.Close)
		atr.Update(c.High, c.Low, c.Close)
	}

	last := candles[len(candles)-1]
	upper, mid, lower := boll.Bands()

	window := candles
	if len(window) > levelsWindow {
		window = window[len(window)-levelsWindow:]
	}
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i := range window {
		highs[i] = window[i].High
		lows[i] = window[i].Low
	}
	support, resistance := Levels(highs, lows)

	snap := model.IndicatorSnapshot{
		Instrument: instrument,
		Interval:   interval,
		AsOf:       last.OpenTime,
		Close:      last.Close,
		SMA:        make(map[int]float64, len(sma)),
		EMA:        make(map[int]float64, len(ema)),
		RSI:        rsi.Value(),
		MACD: model.MACD{
			Line:   macd.Line(),
			Signal: macd.Signal(),
			Hist:   macd.Hist(),
		},
		Bollinger: model.Bollinger{
			Upper:    upper,
			Mid:      mid,
			Lower:    lower,
			Position: boll.Position(last.Close),
		},
		ATR:        atr.Value(),
		Support:    support,
		Resistance: resistance,
	}
	for p, s := range sma {
		snap.SMA[p] = s.Value()
	}
	for p, e := range ema {
		snap.EMA[p] = e.Value()
	}
	return snap, nil
}
