package analytics

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

func testUnits(t *testing.T, names ...string) []metricUnit {
	t.Helper()
	units := make([]metricUnit, len(names))
	for i, name := range names {
		def := MetricDefinition{Name: name, Type: MetricSum, Table: "events", Field: "amount", TimeField: "created_at"}
		q, err := PlanQuery(def, "org-1", testWindow(), nil, nil)
		require.NoError(t, err)
		units[i] = metricUnit{def: def, queries: []*Query{q, q}}
	}
	return units
}

func TestAggregator_ResultsFollowUnitOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := DataSourceFunc(func(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
		// later metrics finish first
		delay := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 15 * time.Millisecond}[q.Metric]
		time.Sleep(delay)
		return []Row{{Value: float64(len(q.Metric))}, {Group: q.Metric, Value: 1}}, nil
	})

	agg := NewAggregator(src, logger, nil, time.Second, 4)
	results := agg.Execute(context.Background(), "org-1", testUnits(t, "a", "b", "ccc"))

	require.Len(t, results, 3)
	for i, name := range []string{"a", "b", "ccc"} {
		require.NoError(t, results[i].err)
		require.Len(t, results[i].rows, 2)
		assert.Equal(t, name, results[i].rows[0][1].Group)
	}
}

func TestAggregator_FailureIsIsolated(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	src := DataSourceFunc(func(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
		switch q.Metric {
		case "panics":
			panic("driver bug")
		case "fails":
			return nil, fmt.Errorf("relation does not exist")
		}
		return []Row{{Value: 1}}, nil
	})

	agg := NewAggregator(src, logger, metrics, time.Second, 2)
	results := agg.Execute(context.Background(), "org-1", testUnits(t, "ok", "panics", "fails", "alsoOk"))

	assert.NoError(t, results[0].err)
	assert.Error(t, results[1].err)
	assert.Error(t, results[2].err)
	assert.NoError(t, results[3].err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MetricQueriesTotal.WithLabelValues("fails", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MetricQueriesTotal.WithLabelValues("ok", "success")))
}

func TestAggregator_TimeoutBoundsSourceThatIgnoresContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	release := make(chan struct{})
	defer close(release)

	src := DataSourceFunc(func(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
		if q.Metric == "stuck" {
			<-release
		}
		return []Row{{Value: 2}}, nil
	})

	agg := NewAggregator(src, logger, nil, 50*time.Millisecond, 4)
	start := time.Now()
	results := agg.Execute(context.Background(), "org-1", testUnits(t, "stuck", "fast"))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, results[0].err, context.DeadlineExceeded)
	assert.NoError(t, results[1].err)
}

func TestAggregator_ConcurrencyLimit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var running, peak int32

	src := DataSourceFunc(func(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	})

	agg := NewAggregator(src, logger, nil, time.Second, 2)
	results := agg.Execute(context.Background(), "org-1", testUnits(t, "a", "b", "c", "d", "e"))

	for _, r := range results {
		assert.NoError(t, r.err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSortRows(t *testing.T) {
	in := []Row{{Group: "b", Value: 1}, {Group: "a", Value: 2}, {Group: "b", Value: 3}}
	out := sortRows(in)

	assert.Equal(t, []Row{{Group: "a", Value: 2}, {Group: "b", Value: 1}, {Group: "b", Value: 3}}, out)
	assert.Equal(t, "b", in[0].Group, "input is not reordered")
}
