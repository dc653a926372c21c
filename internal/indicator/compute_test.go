package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"crypto-analyzer/internal/model"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeCandles(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Instrument: "BTC",
			Interval:   model.Interval1d,
			OpenTime:   baseTime.AddDate(0, 0, i),
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Source:     "binance",
		}
	}
	return out
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSMAKnownValues(t *testing.T) {
	s := NewSMA(3)
	for _, v := range []float64{1, 2, 3} {
		s.Update(v)
	}
	if !s.Ready() {
		t.Fatal("SMA should be ready after 3 values")
	}
	if math.Abs(s.Value()-2.0) > 1e-9 {
		t.Errorf("expected SMA 2.0, got %f", s.Value())
	}
	s.Update(4)
	if math.Abs(s.Value()-3.0) > 1e-9 {
		t.Errorf("expected SMA 3.0 after window slide, got %f", s.Value())
	}
}

func TestEMASeedsWithSMA(t *testing.T) {
	e := NewEMA(3)
	for _, v := range []float64{2, 4, 6} {
		e.Update(v)
	}
	if math.Abs(e.Value()-4.0) > 1e-9 {
		t.Errorf("expected SMA seed 4.0, got %f", e.Value())
	}
	e.Update(8)
	// multiplier = 2/(3+1) = 0.5, so 8*0.5 + 4*0.5 = 6
	if math.Abs(e.Value()-6.0) > 1e-9 {
		t.Errorf("expected EMA 6.0, got %f", e.Value())
	}
}

func TestRSIExtremesAndNeutral(t *testing.T) {
	// Monotonic gains drive RSI to 100.
	up := NewRSI(14)
	for i := 0; i < 30; i++ {
		up.Update(100 + float64(i))
	}
	if up.Value() != 100.0 {
		t.Errorf("expected RSI 100 on pure gains, got %f", up.Value())
	}

	// Constant closes read as a defined neutral 50, not a crash.
	flat := NewRSI(14)
	for i := 0; i < 30; i++ {
		flat.Update(100)
	}
	if flat.Value() != 50.0 {
		t.Errorf("expected RSI 50 on flat closes, got %f", flat.Value())
	}
}

func TestMACDReadyThreshold(t *testing.T) {
	m := NewMACD(12, 26, 9)
	for i := 0; i < 26+8; i++ {
		m.Update(100 + float64(i))
	}
	if m.Ready() {
		t.Fatal("MACD ready before the signal line seeded")
	}
	m.Update(200)
	if !m.Ready() {
		t.Fatal("MACD not ready after slow+signal candles")
	}
}

func TestComputeInsufficientHistory(t *testing.T) {
	candles := makeCandles(constSeries(MinHistory-1, 100))
	_, err := Compute("BTC", model.Interval1d, candles)
	if err == nil {
		t.Fatal("expected insufficient history error")
	}
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
	var ih *model.InsufficientHistoryError
	if !errors.As(err, &ih) || ih.Need != MinHistory {
		t.Errorf("expected typed error with need=%d, got %+v", MinHistory, ih)
	}
}

func TestComputeConstantPrice(t *testing.T) {
	candles := makeCandles(constSeries(MinHistory, 100))
	snap, err := Compute("BTC", model.Interval1d, candles)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if snap.Bollinger.Upper != 100 || snap.Bollinger.Mid != 100 || snap.Bollinger.Lower != 100 {
		t.Errorf("expected collapsed bands at 100, got %+v", snap.Bollinger)
	}
	if snap.Bollinger.Position != 50 {
		t.Errorf("expected neutral band position 50, got %f", snap.Bollinger.Position)
	}
	if snap.RSI != 50 {
		t.Errorf("expected neutral RSI 50, got %f", snap.RSI)
	}
	if snap.SMA[20] != 100 || snap.SMA[200] != 100 {
		t.Errorf("expected flat SMAs at 100, got %v", snap.SMA)
	}
	if snap.ATR != 0 {
		t.Errorf("expected zero ATR on flat candles, got %f", snap.ATR)
	}
}

func TestComputeRisingSeries(t *testing.T) {
	closes := make([]float64, MinHistory+50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	snap, err := Compute("BTC", model.Interval1d, makeCandles(closes))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.EMA[12] <= snap.EMA[26] {
		t.Errorf("fast EMA should lead slow EMA in an uptrend: %v", snap.EMA)
	}
	if snap.MACD.Line <= 0 {
		t.Errorf("expected positive MACD line in uptrend, got %f", snap.MACD.Line)
	}
	if snap.RSI <= 70 {
		t.Errorf("expected overbought RSI in monotonic uptrend, got %f", snap.RSI)
	}
	if snap.AsOf != baseTime.AddDate(0, 0, len(closes)-1) {
		t.Errorf("as_of should be last candle open time, got %v", snap.AsOf)
	}
}

func TestLevelsClusterByTouchCount(t *testing.T) {
	// Three touches near 110, one peak at 120.
	highs := []float64{
		100, 105, 110, 105, 100,
		105, 110.5, 105, 100,
		105, 109.5, 105, 100,
		110, 120, 110, 100,
	}
	lows := make([]float64, len(highs))
	for i, h := range highs {
		lows[i] = h - 50
	}

	_, resistance := Levels(highs, lows)
	if len(resistance) < 2 {
		t.Fatalf("expected at least 2 resistance levels, got %v", resistance)
	}
	if resistance[0].Strength < resistance[1].Strength {
		t.Errorf("levels not sorted by strength: %v", resistance)
	}
	if math.Abs(resistance[0].Price-110) > 1.0 {
		t.Errorf("strongest level should cluster near 110, got %f", resistance[0].Price)
	}
}

func TestConfluenceUnanimousUptrend(t *testing.T) {
	snaps := make(map[model.Interval]model.IndicatorSnapshot)
	for _, iv := range model.ConfluenceIntervals {
		snaps[iv] = model.IndicatorSnapshot{
			Instrument: "BTC",
			Interval:   iv,
			AsOf:       baseTime,
			Close:      110,
			SMA:        map[int]float64{20: 100, 50: 95, 200: 90},
			EMA:        map[int]float64{12: 108, 26: 104},
		}
	}
	res := Confluence("BTC", snaps, nil)
	if res.Score != 100 {
		t.Errorf("expected score 100 for unanimous uptrend, got %f", res.Score)
	}
	for iv, v := range res.Votes {
		if v != model.TrendUp {
			t.Errorf("expected up vote for %s, got %v", iv, v)
		}
	}
}

func TestConfluenceWeeklyOutweighsIntraday(t *testing.T) {
	up := model.IndicatorSnapshot{
		Close: 110,
		SMA:   map[int]float64{20: 100},
		EMA:   map[int]float64{12: 108, 26: 104},
	}
	down := up
	down.Close = 90
	down.EMA = map[int]float64{12: 100, 26: 104}

	snaps := map[model.Interval]model.IndicatorSnapshot{
		model.Interval4h: down, // weight 1
		model.Interval1d: down, // weight 2
		model.Interval1w: up,   // weight 3
	}
	res := Confluence("BTC", snaps, nil)
	// weighted = -1 -2 +3 = 0, score 50
	if res.Score != 50 {
		t.Errorf("expected balanced score 50, got %f", res.Score)
	}

	snaps[model.Interval4h] = up
	res = Confluence("BTC", snaps, nil)
	if res.Score <= 50 {
		t.Errorf("weekly+4h up should pull score above 50, got %f", res.Score)
	}
}

func TestDivergenceBearish(t *testing.T) {
	// Price makes a higher swing high while RSI cools after the pullback:
	// a long first leg, a sharp pullback, then a higher second peak.
	closes := make([]float64, 0, 103)
	for i := 0; i < 70; i++ {
		closes = append(closes, 100+float64(i)*2) // first leg peaks at 238
	}
	for i := 1; i <= 10; i++ {
		closes = append(closes, 238-float64(i)*3) // pullback to 208
	}
	for i := 1; i <= 20; i++ {
		closes = append(closes, 208+float64(i)*2) // second peak at 248
	}
	closes = append(closes, 246, 244, 242)

	if kind := Divergence(closes); kind != "bearish" {
		t.Errorf("expected bearish divergence, got %q", kind)
	}
}

func TestDivergenceShortHistory(t *testing.T) {
	if kind := Divergence(constSeries(10, 100)); kind != "" {
		t.Errorf("expected no divergence on short history, got %q", kind)
	}
}
