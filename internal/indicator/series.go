package indicator

// Series helpers for the pattern detector and divergence rule: each
// returns one value per input close, with zero (not-ready) entries until
// the kernel has seeded.

// SMASeries returns the rolling mean aligned to the input closes.
func SMASeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	s := NewSMA(period)
	for i, c := range closes {
		s.Update(c)
		if s.Ready() {
			out[i] = s.Value()
		}
	}
	return out
}

// RSISeries returns Wilder RSI aligned to the input closes.
func RSISeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	r := NewRSI(period)
	for i, c := range closes {
		r.Update(c)
		if r.Ready() {
			out[i] = r.Value()
		}
	}
	return out
}

// MACDHistSeries returns the MACD histogram aligned to the input closes.
func MACDHistSeries(closes []float64, fast, slow, signal int) []float64 {
	out := make([]float64, len(closes))
	m := NewMACD(fast, slow, signal)
	for i, c := range closes {
		m.Update(c)
		if m.Ready() {
			out[i] = m.Hist()
		}
	}
	return out
}

// LocalMaxima returns indices i where closes[i] is strictly greater than
// its span neighbors on both sides.
func LocalMaxima(values []float64, span int) []int {
	var out []int
	for i := span; i < len(values)-span; i++ {
		peak := true
		for j := 1; j <= span; j++ {
			if values[i] <= values[i-j] || values[i] <= values[i+j] {
				peak = false
				break
			}
		}
		if peak {
			out = append(out, i)
		}
	}
	return out
}

// LocalMinima returns indices i where values[i] is strictly less than its
// span neighbors on both sides.
func LocalMinima(values []float64, span int) []int {
	var out []int
	for i := span; i < len(values)-span; i++ {
		trough := true
		for j := 1; j <= span; j++ {
			if values[i] >= values[i-j] || values[i] >= values[i+j] {
				trough = false
				break
			}
		}
		if trough {
			out = append(out, i)
		}
	}
	return out
}
