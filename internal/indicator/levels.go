package indicator

import (
	"sort"

	"crypto-analyzer/internal/model"
)

const (
	// Local extrema are compared against this many neighbors each side.
	extremaSpan = 2

	// Extrema within this fraction of each other join one level cluster.
	clusterTolerance = 0.02

	maxLevels = 5
)

type cluster struct {
	sum     float64
	touches int
}

func (c *cluster) price() float64 { return c.sum / float64(c.touches) }

// Levels clusters local extrema into support and resistance levels.
// Cluster strength is the touch count; levels are returned strongest
// first, at most maxLevels each.
func Levels(highs, lows []float64) (support, resistance []model.Level) {
	resistance = clusterExtrema(highs, LocalMaxima(highs, extremaSpan))
	support = clusterExtrema(lows, LocalMinima(lows, extremaSpan))
	return support, resistance
}

func clusterExtrema(values []float64, idxs []int) []model.Level {
	var clusters []*cluster
	for _, i := range idxs {
		v := values[i]
		matched := false
		for _, cl := range clusters {
			p := cl.price()
			if p > 0 && abs(v-p)/p <= clusterTolerance {
				cl.sum += v
				cl.touches++
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, &cluster{sum: v, touches: 1})
		}
	}

	levels := make([]model.Level, 0, len(clusters))
	for _, cl := range clusters {
		levels = append(levels, model.Level{Price: cl.price(), Strength: cl.touches})
	}
	// Strongest first; price breaks ties so output order is deterministic.
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Strength != levels[j].Strength {
			return levels[i].Strength > levels[j].Strength
		}
		return levels[i].Price < levels[j].Price
	})
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
