package indicator

import "math"

// ATR calculates Average True Range as a rolling simple mean of true
// ranges over the period.
type ATR struct {
	period    int
	sma       *SMA
	prevClose float64
	count     int
}

// NewATR creates a new ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, sma: NewSMA(period)}
}

func (a *ATR) Update(high, low, close float64) {
	a.count++
	if a.count == 1 {
		// No previous close: true range is the candle's own range.
		a.sma.Update(high - low)
		a.prevClose = close
		return
	}
	tr := math.Max(high-low, math.Max(
		math.Abs(high-a.prevClose),
		math.Abs(low-a.prevClose),
	))
	a.sma.Update(tr)
	a.prevClose = close
}

func (a *ATR) Value() float64 { return a.sma.Value() }
func (a *ATR) Ready() bool    { return a.sma.Ready() }
