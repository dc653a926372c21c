package indicator

import "math"

// Bollinger calculates Bollinger Bands: a rolling mean plus/minus a
// multiple of the rolling population standard deviation. Keeps a circular
// window buffer like SMA, plus a sum of squares for O(1) variance.
//
// A flat window collapses the bands to a single point: upper = mid =
// lower, and Position reports neutral 50.
type Bollinger struct {
	period  int
	stddevs float64
	buf     []float64
	idx     int
	count   int
	sum     float64
	sumSq   float64
}

// NewBollinger creates bands with the given period and deviation multiple
// (typically 20 and 2).
func NewBollinger(period int, stddevs float64) *Bollinger {
	return &Bollinger{
		period:  period,
		stddevs: stddevs,
		buf:     make([]float64, period),
	}
}

func (b *Bollinger) Update(price float64) {
	if b.count >= b.period {
		old := b.buf[b.idx]
		b.sum -= old
		b.sumSq -= old * old
	}
	b.buf[b.idx] = price
	b.sum += price
	b.sumSq += price * price
	b.idx = (b.idx + 1) % b.period
	b.count++
}

func (b *Bollinger) Ready() bool { return b.count >= b.period }

// Bands returns (upper, mid, lower).
func (b *Bollinger) Bands() (float64, float64, float64) {
	if !b.Ready() {
		return 0, 0, 0
	}
	n := float64(b.period)
	mean := b.sum / n
	variance := b.sumSq/n - mean*mean
	if variance < mean*mean*1e-12 {
		// Floating-point cancellation on constant windows; the bands
		// collapse to a point rather than reporting noise.
		variance = 0
	}
	sd := math.Sqrt(variance)
	return mean + b.stddevs*sd, mean, mean - b.stddevs*sd
}

// Position returns where price sits inside the bands as a percentage in
// [0,100]; 50 when the bands have collapsed to a point.
func (b *Bollinger) Position(price float64) float64 {
	upper, _, lower := b.Bands()
	if upper == lower {
		return 50.0
	}
	pos := (price - lower) / (upper - lower) * 100.0
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
