package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTrend(t *testing.T) {
	tests := []struct {
		name       string
		current    float64
		previous   float64
		wantPct    float64
		wantDir    Direction
		noBaseline bool
	}{
		{"growth", 120, 100, 20, DirectionUp, false},
		{"decline", 80, 100, -20, DirectionDown, false},
		{"inside band up", 101.5, 100, 1.5, DirectionStable, false},
		{"inside band down", 98.5, 100, -1.5, DirectionStable, false},
		{"zero to zero", 0, 0, 0, DirectionStable, false},
		{"zero to positive", 100, 0, 100, DirectionUp, true},
		{"zero to negative", -5, 0, -100, DirectionDown, true},
		{"negative baseline recovering", -50, -100, 50, DirectionUp, false},
		{"negative baseline worsening", -150, -100, -50, DirectionDown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := NewTrend(tt.current, tt.previous, DefaultStableBand)
			assert.InDelta(t, tt.wantPct, trend.PercentChange, 1e-9)
			assert.Equal(t, tt.wantDir, trend.Direction)
			assert.Equal(t, tt.noBaseline, trend.NoBaseline)
			assert.Equal(t, tt.current, trend.Value)
			assert.Equal(t, tt.previous, trend.PreviousValue)
		})
	}
}

func TestNewTrend_NeverNaNOrInf(t *testing.T) {
	values := []float64{0, -0, 1, -1, 1e308, -1e308, 1e-308, math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, cur := range values {
		for _, prev := range values {
			trend := NewTrend(cur, prev, DefaultStableBand)
			for _, v := range []float64{trend.Value, trend.PreviousValue, trend.PercentChange} {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "cur=%v prev=%v produced %v", cur, prev, v)
			}
			assert.Contains(t, []Direction{DirectionUp, DirectionDown, DirectionStable}, trend.Direction)

			cmp := NewComparison(cur, prev, DefaultStableBand)
			for _, v := range []float64{cmp.Current, cmp.Previous, cmp.Change, cmp.PercentChange} {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "cur=%v prev=%v produced %v", cur, prev, v)
			}
		}
	}
}

func TestNewComparison(t *testing.T) {
	cmp := NewComparison(150, 200, DefaultStableBand)

	assert.Equal(t, 150.0, cmp.Current)
	assert.Equal(t, 200.0, cmp.Previous)
	assert.Equal(t, -50.0, cmp.Change)
	assert.InDelta(t, -25, cmp.PercentChange, 1e-9)
	assert.Equal(t, DirectionDown, cmp.Direction)
	assert.False(t, cmp.NoBaseline)
}

func TestSumRows(t *testing.T) {
	rows := []Row{{Group: "a", Value: 1.5}, {Group: "b", Value: 2.5}, {Group: "c", Value: math.NaN()}}
	assert.Equal(t, 4.0, sumRows(rows))
	assert.Equal(t, 0.0, sumRows(nil))
}
