package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

func TestReportCacheKey_Canonical(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	startEST := start.In(est)

	a := AnalyticsRequest{
		Industry:  "hs",
		Metrics:   []string{"totalRevenue", "newLeads"},
		TimeRange: RangeCustom,
		StartDate: &start,
		EndDate:   &end,
		Filters:   map[string]interface{}{"status": "paid", "source": "google"},
	}
	b := AnalyticsRequest{
		TenantID:  "org-1",
		Industry:  "hs",
		Metrics:   []string{"newLeads", "totalRevenue", "newLeads"},
		TimeRange: RangeCustom,
		StartDate: &startEST,
		EndDate:   &end,
		Filters:   map[string]interface{}{"source": "google", "status": "paid"},
	}

	ka, err := ReportCacheKey("org-1", a)
	require.NoError(t, err)
	kb, err := ReportCacheKey("org-1", b)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.True(t, strings.HasPrefix(ka, "report:v1:"))
	assert.Len(t, strings.TrimPrefix(ka, "report:v1:"), 64)
}

func TestReportCacheKey_Distinguishes(t *testing.T) {
	base := AnalyticsRequest{Industry: "hs", Metrics: []string{"totalRevenue"}, TimeRange: RangeMonth}
	key := func(tenant string, mutate func(r *AnalyticsRequest)) string {
		r := base
		mutate(&r)
		k, err := ReportCacheKey(tenant, r)
		require.NoError(t, err)
		return k
	}

	ref := key("org-1", func(*AnalyticsRequest) {})
	assert.NotEqual(t, ref, key("org-2", func(*AnalyticsRequest) {}))
	assert.NotEqual(t, ref, key("org-1", func(r *AnalyticsRequest) { r.TimeRange = RangeWeek }))
	assert.NotEqual(t, ref, key("org-1", func(r *AnalyticsRequest) { r.Industry = "auto" }))
	assert.NotEqual(t, ref, key("org-1", func(r *AnalyticsRequest) { r.GroupBy = []string{"status"} }))
	assert.NotEqual(t, ref, key("org-1", func(r *AnalyticsRequest) {
		r.Filters = map[string]interface{}{"status": "void"}
	}))
	assert.NotEqual(t, ref, key("org-1", func(r *AnalyticsRequest) {
		r.Comparison = &ComparisonSpec{TimeRange: RangeYear}
	}))
}

func TestInsightCacheKey(t *testing.T) {
	assert.Equal(t, "insights:v1:all", insightCacheKey(""))
	assert.Equal(t, "insights:v1:hs", insightCacheKey("hs"))
}

func TestResultCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(10, time.Hour)
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	rc := &resultCache{store: store, logger: logger, metrics: metrics}

	require.NoError(t, store.Set(ctx, "org-1", "report:v1:x", []byte("{not json"), time.Minute))

	var dst AnalyticsResult
	assert.False(t, rc.load(ctx, "org-1", "report:v1:x", "report", &dst))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheErrorsTotal.WithLabelValues("report", "decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("report")))
	assert.NotEmpty(t, hook.AllEntries())

	rc.save(ctx, "org-1", "report:v1:y", "report", []byte(`{"summary":{"a":1}}`), time.Minute, tableTags([]string{"invoices"}))
	assert.True(t, rc.load(ctx, "org-1", "report:v1:y", "report", &dst))
	assert.Equal(t, 1.0, dst.Summary["a"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("report")))
}
