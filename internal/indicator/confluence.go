package indicator

import (
	"time"

	"crypto-analyzer/internal/model"
)

// Confluence combines per-timeframe trend votes into one agreement score.
// Each snapshot votes up, down, or flat; votes are weighted by timeframe
// length (a weekly signal counts more than a 4-hour one) and normalized
// into [0,100], where 100 is unanimous-up and 0 unanimous-down.
//
// dailyCloses, when long enough, feeds the price/momentum divergence rule.
func Confluence(instrument string, snaps map[model.Interval]model.IndicatorSnapshot, dailyCloses []float64) model.ConfluenceResult {
	res := model.ConfluenceResult{
		Instrument: instrument,
		Votes:      make(map[model.Interval]model.TrendVote, len(snaps)),
		Score:      50,
	}

	var weighted, totalWeight float64
	var asOf time.Time
	for _, iv := range model.ConfluenceIntervals {
		snap, ok := snaps[iv]
		if !ok {
			continue
		}
		vote := trendVote(snap)
		res.Votes[iv] = vote
		w := weightFor(iv)
		weighted += float64(vote) * w
		totalWeight += w
		if snap.AsOf.After(asOf) {
			asOf = snap.AsOf
		}
	}
	res.AsOf = asOf

	if totalWeight > 0 {
		// Map [-totalWeight, +totalWeight] onto [0,100].
		res.Score = (weighted + totalWeight) / (2 * totalWeight) * 100
	}

	if kind := Divergence(dailyCloses); kind != "" {
		res.Divergence = true
		res.DivergenceKind = kind
	}
	return res
}

// trendVote derives one timeframe's direction from its snapshot: up when
// the fast EMA leads the slow EMA and price holds above the short mean,
// down on the mirror condition, flat otherwise.
func trendVote(snap model.IndicatorSnapshot) model.TrendVote {
	fast, slow := snap.EMA[emaFast], snap.EMA[emaSlow]
	mean := snap.SMA[smaShort]
	switch {
	case fast > slow && snap.Close > mean:
		return model.TrendUp
	case fast < slow && snap.Close < mean:
		return model.TrendDown
	default:
		return model.TrendFlat
	}
}

// weightFor scales a vote by timeframe length: weekly 3, daily 2,
// intraday 1.
func weightFor(iv model.Interval) float64 {
	step := iv.Step()
	switch {
	case step >= 7*24*time.Hour:
		return 3
	case step >= 24*time.Hour:
		return 2
	default:
		return 1
	}
}
