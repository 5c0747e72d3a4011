package analytics

import "math"

// DefaultStableBand is the percent change within which a metric is "stable".
const DefaultStableBand = 2.0

// percentChange compares current against previous. A zero baseline never
// divides: 0 -> 0 is stable, movement off zero reports +/-100 and noBaseline.
// Dividing by |previous| keeps the sign on the direction of movement for
// negative baselines. The result is always finite.
func percentChange(current, previous, band float64) (pct float64, dir Direction, noBaseline bool) {
	current = finite(current)
	previous = finite(previous)

	if previous == 0 {
		switch {
		case current > 0:
			return 100, DirectionUp, true
		case current < 0:
			return -100, DirectionDown, true
		default:
			return 0, DirectionStable, false
		}
	}

	pct = finite((current - previous) / math.Abs(previous) * 100)
	switch {
	case pct > band:
		dir = DirectionUp
	case pct < -band:
		dir = DirectionDown
	default:
		dir = DirectionStable
	}
	return pct, dir, false
}

// NewTrend builds the trend of a metric against its preceding window.
func NewTrend(current, previous, band float64) Trend {
	pct, dir, noBaseline := percentChange(current, previous, band)
	return Trend{
		Value:         finite(current),
		PreviousValue: finite(previous),
		PercentChange: pct,
		Direction:     dir,
		NoBaseline:    noBaseline,
	}
}

// NewComparison builds a comparison of a metric against another period.
func NewComparison(current, previous, band float64) Comparison {
	current = finite(current)
	previous = finite(previous)
	pct, dir, noBaseline := percentChange(current, previous, band)
	return Comparison{
		Current:       current,
		Previous:      previous,
		Change:        finite(current - previous),
		PercentChange: pct,
		Direction:     dir,
		NoBaseline:    noBaseline,
	}
}

func sumRows(rows []Row) float64 {
	var total float64
	for _, r := range rows {
		total += finite(r.Value)
	}
	return finite(total)
}

// finite maps NaN and +/-Inf to zero so results always encode as JSON.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
