package indicator

// Price/momentum divergence over the trailing window: price makes a new
// swing extreme but RSI or the MACD histogram does not confirm it.
// Compares the last two swing points of each series.

const (
	divergenceLookback = 50
	swingSpan          = 2
)

// Divergence inspects the trailing closes and reports "bullish",
// "bearish", or "" when price and momentum agree.
//
// Bullish: price sets a lower swing low while the indicator sets a higher
// low. Bearish: price sets a higher swing high while the indicator sets a
// lower high.
func Divergence(closes []float64) string {
	if len(closes) < divergenceLookback {
		return ""
	}
	window := closes[len(closes)-divergenceLookback:]

	for _, ind := range [][]float64{
		RSISeries(closes, rsiPeriod),
		MACDHistSeries(closes, emaFast, emaSlow, macdSignal),
	} {
		indWindow := ind[len(ind)-divergenceLookback:]
		if kind := divergeOnce(window, indWindow); kind != "" {
			return kind
		}
	}
	return ""
}

func divergeOnce(price, ind []float64) string {
	// Bearish: two rising price highs, falling indicator highs.
	if hi := LocalMaxima(price, swingSpan); len(hi) >= 2 {
		a, b := hi[len(hi)-2], hi[len(hi)-1]
		if price[b] > price[a] && ind[a] != 0 && ind[b] < ind[a] {
			return "bearish"
		}
	}
	// Bullish: two falling price lows, rising indicator lows.
	if lo := LocalMinima(price, swingSpan); len(lo) >= 2 {
		a, b := lo[len(lo)-2], lo[len(lo)-1]
		if price[b] < price[a] && ind[a] != 0 && ind[b] > ind[a] {
			return "bullish"
		}
	}
	return ""
}
