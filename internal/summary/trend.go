package summary

import (
	"math"
	"time"
)

// Trend classifies the direction of a series.
type Trend string

const (
	TrendIncreasing   Trend = "increasing"
	TrendStable       Trend = "stable"
	TrendDecreasing   Trend = "decreasing"
	TrendInsufficient Trend = "insufficient_data"
)

// trendThreshold is the percentage change that counts as a move.
const trendThreshold = 5.0

// ClassifyTrend compares the mean of the last three values with the mean of
// the first three. A change of at least five percent either way is a trend.
func ClassifyTrend(values []float64) Trend {
	if len(values) < 2 {
		return TrendInsufficient
	}
	n := min(3, len(values))
	earlier := mean(values[:n])
	recent := mean(values[len(values)-n:])
	if earlier == 0 {
		return TrendStable
	}

	diff := round((recent-earlier)/earlier*100, 1)
	switch {
	case diff <= -trendThreshold:
		return TrendDecreasing
	case diff >= trendThreshold:
		return TrendIncreasing
	default:
		return TrendStable
	}
}

// QualityScore is the covered share of expected days as a percentage, capped at 100.
func QualityScore(covered, expected int) int {
	if expected <= 0 {
		return 0
	}
	score := int(math.Round(float64(covered) / float64(expected) * 100))
	return min(score, 100)
}

// ConsistencyScore is the percentage of window days with at least one record.
func ConsistencyScore(recordedAt []time.Time, w Window) int {
	days := make(map[string]struct{}, len(recordedAt))
	for _, at := range recordedAt {
		day := at.UTC().Format(time.DateOnly)
		days[day] = struct{}{}
	}
	return QualityScore(len(days), w.Days())
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
