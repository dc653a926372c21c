package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MACD is the line/signal/histogram triple of the 12-26-9 convergence
// oscillator.
type MACD struct {
	Line   float64 `json:"line"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// Bollinger carries the 20-period bands and the close position inside them
// as a percentage in [0,100] (50 when the bands collapse to a point).
type Bollinger struct {
	Upper    float64 `json:"upper"`
	Mid      float64 `json:"mid"`
	Lower    float64 `json:"lower"`
	Position float64 `json:"position"`
}

// Level is one clustered support or resistance price. Strength counts the
// local extrema that touched the cluster band.
type Level struct {
	Price    float64 `json:"price"`
	Strength int     `json:"strength"`
}

// IndicatorSnapshot is the derived indicator state for one instrument and
// interval as of the last stored candle. Cache-only: recomputed from the
// trailing candle window, never mutated in place.
type IndicatorSnapshot struct {
	Instrument string          `json:"instrument"`
	Interval   Interval        `json:"interval"`
	AsOf       time.Time       `json:"as_of"`
	Close      float64         `json:"close"`
	SMA        map[int]float64 `json:"sma"`
	EMA        map[int]float64 `json:"ema"`
	RSI        float64         `json:"rsi"`
	MACD       MACD            `json:"macd"`
	Bollinger  Bollinger       `json:"bollinger"`
	ATR        float64         `json:"atr"`
	Support    []Level         `json:"support"`
	Resistance []Level         `json:"resistance"`
}

// TrendVote is one timeframe's trend direction contribution.
type TrendVote int

const (
	TrendDown TrendVote = -1
	TrendFlat TrendVote = 0
	TrendUp   TrendVote = 1
)

func (v TrendVote) String() string {
	switch v {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// ConfluenceResult aggregates per-timeframe trend votes into a single
// agreement score in [0,100]. Longer timeframes carry more weight.
type ConfluenceResult struct {
	Instrument     string                 `json:"instrument"`
	AsOf           time.Time              `json:"as_of"`
	Score          float64                `json:"score"`
	Votes          map[Interval]TrendVote `json:"votes"`
	Divergence     bool                   `json:"divergence"`
	DivergenceKind string                 `json:"divergence_kind,omitempty"` // "bullish" or "bearish"
}

// PatternKind is the closed set of detectable chart patterns.
type PatternKind string

const (
	PatternDoubleTop        PatternKind = "double_top"
	PatternDoubleBottom     PatternKind = "double_bottom"
	PatternGoldenCross      PatternKind = "golden_cross"
	PatternDeathCross       PatternKind = "death_cross"
	PatternRSIOversold      PatternKind = "rsi_oversold"
	PatternRSIOverbought    PatternKind = "rsi_overbought"
	PatternBullishStreak    PatternKind = "bullish_streak"
	PatternBearishStreak    PatternKind = "bearish_streak"
	PatternBandBreakoutUp   PatternKind = "band_breakout_up"
	PatternBandBreakoutDown PatternKind = "band_breakout_down"
	PatternResistanceBreak  PatternKind = "resistance_break"
	PatternSupportBreak     PatternKind = "support_break"
	PatternHigherHighs      PatternKind = "higher_highs"
	PatternLowerLows        PatternKind = "lower_lows"
)

// Pattern is one detection event. Append-only: detections are never
// mutated, only superseded by newer ones. Historical* fields are filled
// from a backward-looking query over the detection log.
type Pattern struct {
	Instrument          string      `json:"instrument"`
	Kind                PatternKind `json:"kind"`
	DetectedAt          time.Time   `json:"detected_at"`
	WindowStart         time.Time   `json:"window_start"`
	Price               float64     `json:"price"`
	HistoricalWinRate   float64     `json:"historical_win_rate"`
	HistoricalAvgReturn float64     `json:"historical_avg_return"`
	SampleSize          int         `json:"sample_size"`
}

// CyclePhase is one of the eight ordered market-cycle phases.
type CyclePhase int

const (
	PhaseAccumulation CyclePhase = iota
	PhaseEarlyBull
	PhaseBullRun
	PhaseEuphoria
	PhaseDistribution
	PhaseEarlyBear
	PhaseBear
	PhaseCapitulation
)

var phaseNames = [...]string{
	"accumulation", "early_bull", "bull_run", "euphoria",
	"distribution", "early_bear", "bear", "capitulation",
}

func (p CyclePhase) String() string {
	if p < PhaseAccumulation || p > PhaseCapitulation {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalJSON emits the phase name rather than its ordinal.
func (p CyclePhase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *CyclePhase) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range phaseNames {
		if n == name {
			*p = CyclePhase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown cycle phase %q", name)
}

// CycleInfo is the full cycle classification for an instrument.
type CycleInfo struct {
	Instrument     string     `json:"instrument"`
	AsOf           time.Time  `json:"as_of"`
	Phase          CyclePhase `json:"phase"`
	Position       float64    `json:"position"` // [0,100] through the four-year cycle
	DaysSinceEvent int        `json:"days_since_event"`
	DaysToEvent    int        `json:"days_to_event"`
	DrawdownPct    float64    `json:"drawdown_pct"`
	RiskLevel      string     `json:"risk_level"`
	Recommendation string     `json:"recommendation"`
}

// BacktestResult is the deterministic outcome of one strategy replay.
// Identical candle slice and parameters must produce byte-identical
// results.
type BacktestResult struct {
	Instrument    string    `json:"instrument"`
	Strategy      string    `json:"strategy"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	Invested      float64   `json:"invested"`
	FinalValue    float64   `json:"final_value"`
	Coins         float64   `json:"coins"`
	AvgBuyPrice   float64   `json:"avg_buy_price"`
	Buys          int       `json:"buys"`
	ROI           float64   `json:"roi"`            // percent
	AnnualizedROI float64   `json:"annualized_roi"` // percent
	MaxDrawdown   float64   `json:"max_drawdown"`   // percent, peak to trough
	Sharpe        float64   `json:"sharpe"`
	Sortino       float64   `json:"sortino"`
	VaR95         float64   `json:"var_95"` // percent loss, historical 5th percentile
}
