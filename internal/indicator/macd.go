package indicator

// MACD calculates Moving Average Convergence Divergence: the difference of
// a fast and a slow EMA, with a signal EMA over that difference and the
// histogram between the two.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
	hist   float64
}

// NewMACD creates a MACD with the given periods (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
	if m.signal.Ready() {
		m.hist = m.line - m.signal.Value()
	}
}

// Ready reports whether both the slow EMA and the signal line have seeded.
func (m *MACD) Ready() bool { return m.slow.Ready() && m.signal.Ready() }

func (m *MACD) Line() float64   { return m.line }
func (m *MACD) Signal() float64 { return m.signal.Value() }
func (m *MACD) Hist() float64   { return m.hist }
