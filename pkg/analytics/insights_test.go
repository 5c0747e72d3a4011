package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

var insightClock = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*InsightGenerator, *observability.Metrics) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	g := NewInsightGenerator(DefaultInsightConfig(), logger, metrics, func() time.Time { return insightClock })
	n := 0
	g.newID = func() string {
		n++
		return fmt.Sprintf("insight-%d", n)
	}
	return g, metrics
}

func series(category Category, name string, values ...float64) MetricSeries {
	return MetricSeries{
		Industry: "hs",
		Metric:   MetricDefinition{Name: name, Label: "Test " + name, Category: category},
		Values:   values,
	}
}

func findInsight(insights []Insight, metric string, typ InsightType) (Insight, bool) {
	for _, in := range insights {
		if in.Metric == metric && in.Type == typ {
			return in, true
		}
	}
	return Insight{}, false
}

func TestInsights_RevenueTrend(t *testing.T) {
	g, _ := newTestGenerator(t)

	insights := g.Generate([]MetricSeries{
		series(CategoryRevenue, "growing", 100, 100, 100, 130),
		series(CategoryRevenue, "shrinking", 100, 100, 100, 90),
		series(CategoryRevenue, "flat", 100, 100, 100, 102),
	})

	grow, ok := findInsight(insights, "growing", InsightOpportunity)
	require.True(t, ok)
	assert.InDelta(t, 30, grow.Change, 1e-9)
	assert.Equal(t, ImpactHigh, grow.Impact)
	assert.True(t, grow.Actionable)
	assert.NotEmpty(t, grow.SuggestedActions)
	assert.Equal(t, CategoryRevenue, grow.Category)
	assert.Equal(t, "hs", grow.Industry)
	assert.Equal(t, insightClock, grow.GeneratedAt)

	shrink, ok := findInsight(insights, "shrinking", InsightWarning)
	require.True(t, ok)
	assert.Equal(t, ImpactMedium, shrink.Impact)

	for _, in := range insights {
		assert.NotEqual(t, "flat", in.Metric)
	}
}

func TestInsights_CustomerBehavior(t *testing.T) {
	g, _ := newTestGenerator(t)

	insights := g.Generate([]MetricSeries{
		series(CategoryCustomer, "leaving", 200, 200, 200, 180),
		series(CategoryCustomer, "joining", 100, 100, 100, 115),
	})

	_, ok := findInsight(insights, "leaving", InsightWarning)
	assert.True(t, ok)

	joining, ok := findInsight(insights, "joining", InsightTrend)
	require.True(t, ok)
	assert.False(t, joining.Actionable)
}

func TestInsights_Anomaly(t *testing.T) {
	g, _ := newTestGenerator(t)

	insights := g.Generate([]MetricSeries{
		series(CategoryOperations, "spike", 10, 12, 11, 9, 10, 11, 10, 40),
		series(CategoryOperations, "steady", 10, 12, 11, 9, 10, 11, 10, 11),
		series(CategoryOperations, "constant", 5, 5, 5, 5, 5, 5, 5, 50),
		series(CategoryOperations, "short", 10, 40),
	})

	spike, ok := findInsight(insights, "spike", InsightAnomaly)
	require.True(t, ok)
	assert.Equal(t, 40.0, spike.Value)
	assert.Greater(t, spike.Change, 0.0)

	_, ok = findInsight(insights, "steady", InsightAnomaly)
	assert.False(t, ok)
	_, ok = findInsight(insights, "constant", InsightAnomaly)
	assert.False(t, ok, "zero variance baselines are skipped")
	_, ok = findInsight(insights, "short", InsightAnomaly)
	assert.False(t, ok)
}

func TestInsights_SustainedGrowth(t *testing.T) {
	g, _ := newTestGenerator(t)

	insights := g.Generate([]MetricSeries{
		series(CategoryMarketing, "leads", 10, 11, 12, 13, 14, 15, 16, 17),
		series(CategoryOperations, "jobs", 20, 18, 16, 14, 12, 10, 8, 6),
		series(CategoryRevenue, "revenue", 10, 11, 12, 13, 14, 15, 16, 17),
	})

	leads, ok := findInsight(insights, "leads", InsightOpportunity)
	require.True(t, ok)
	assert.Greater(t, leads.Change, 0.0)

	_, ok = findInsight(insights, "jobs", InsightWarning)
	assert.True(t, ok)

	for _, in := range insights {
		if in.Metric == "revenue" {
			assert.NotContains(t, in.Title, "Sustained", "revenue metrics are not part of the sustained growth scan")
		}
	}
}

func TestInsights_OrderedByImpactThenTitle(t *testing.T) {
	g, _ := newTestGenerator(t)

	insights := g.Generate([]MetricSeries{
		series(CategoryRevenue, "small", 100, 100, 100, 111),
		series(CategoryRevenue, "big", 100, 100, 100, 200),
		series(CategoryRevenue, "alsoBig", 100, 100, 100, 160),
	})

	require.GreaterOrEqual(t, len(insights), 3)
	for i := 1; i < len(insights); i++ {
		prev, cur := insights[i-1], insights[i]
		if impactRank(prev.Impact) == impactRank(cur.Impact) {
			assert.LessOrEqual(t, prev.Title, cur.Title)
		} else {
			assert.Less(t, impactRank(prev.Impact), impactRank(cur.Impact))
		}
	}

	ids := make(map[string]bool)
	for _, in := range insights {
		assert.False(t, ids[in.ID], "duplicate id %s", in.ID)
		ids[in.ID] = true
	}
}

func TestInsights_ScanPanicIsIsolated(t *testing.T) {
	g, metrics := newTestGenerator(t)
	logger, hook := test.NewNullLogger()
	g.logger = logger

	scan := insightScan{name: "broken", run: func([]MetricSeries) []Insight { panic("boom") }}
	found, err := g.runScan(scan, nil)
	assert.Error(t, err)
	assert.Nil(t, found)

	// A series with too few values must not break the other scans.
	insights := g.Generate([]MetricSeries{
		series(CategoryRevenue, "growing", 100, 130),
		{Industry: "hs", Metric: MetricDefinition{Name: "empty", Category: CategoryMarketing}},
	})
	_, ok := findInsight(insights, "growing", InsightOpportunity)
	assert.True(t, ok)
	assert.Equal(t, 0, len(hook.AllEntries()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InsightScanFailuresTotal.WithLabelValues("broken")))
}

func TestInsights_Empty(t *testing.T) {
	g, _ := newTestGenerator(t)
	insights := g.Generate(nil)
	assert.NotNil(t, insights)
	assert.Empty(t, insights)
}

func TestInsightConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultInsightConfig().Validate())

	cfg := DefaultInsightConfig()
	cfg.HistoryBuckets = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultInsightConfig()
	cfg.DeclineWarningPct = 5
	assert.Error(t, cfg.Validate())

	cfg = DefaultInsightConfig()
	cfg.MediumImpactPct = 50
	assert.Error(t, cfg.Validate())
}

func TestImpact(t *testing.T) {
	g, _ := newTestGenerator(t)
	assert.Equal(t, ImpactHigh, g.impact(-30))
	assert.Equal(t, ImpactMedium, g.impact(10))
	assert.Equal(t, ImpactLow, g.impact(9.9))
}
