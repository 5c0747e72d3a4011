package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

const tracerName = "github.com/byronwade/thorbis.com-sub011/pkg/analytics"

// metricUnit is the unit of work for one metric. Every query in the unit must
// succeed for the metric to be reported.
type metricUnit struct {
	def     MetricDefinition
	queries []*Query
}

// unitResult holds the rows of each query of a unit, in query order.
type unitResult struct {
	rows [][]Row
	err  error
}

// Aggregator executes metric units concurrently against a DataSource.
type Aggregator struct {
	source      DataSource
	logger      logrus.FieldLogger
	metrics     *observability.Metrics
	timeout     time.Duration
	concurrency int
	tracer      trace.Tracer
}

// NewAggregator creates a new aggregator. Each unit gets its own timeout and at
// most concurrency units run at once.
func NewAggregator(source DataSource, logger logrus.FieldLogger, metrics *observability.Metrics, timeout time.Duration, concurrency int) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Aggregator{
		source:      source,
		logger:      logger,
		metrics:     metrics,
		timeout:     timeout,
		concurrency: concurrency,
		tracer:      newTracer(),
	}
}

// Execute runs every unit and returns their results indexed like units,
// regardless of completion order. A failing unit never affects the others.
func (a *Aggregator) Execute(ctx context.Context, tenantID string, units []metricUnit) []unitResult {
	results := make([]unitResult, len(units))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range units {
		g.Go(func() error {
			results[i] = a.run(ctx, tenantID, units[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) run(ctx context.Context, tenantID string, unit metricUnit) unitResult {
	name := unit.def.Name
	ctx, span := a.tracer.Start(ctx, "analytics.executeMetric", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("metric", name),
		attribute.Int("queries", len(unit.queries)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	res := unitResult{rows: make([][]Row, len(unit.queries))}
	for i, q := range unit.queries {
		rows, err := a.execute(ctx, tenantID, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.ObserveMetricQuery(name, "error", time.Since(start))
			return unitResult{err: fmt.Errorf("%s: %w", name, err)}
		}
		res.rows[i] = rows
	}

	a.metrics.ObserveMetricQuery(name, "success", time.Since(start))
	return res
}

// execute bounds a single query by ctx even if the source ignores it. A
// source that never returns leaks its goroutine but not the report.
func (a *Aggregator) execute(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
	type outcome struct {
		rows []Row
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if err := observability.MustRecover(recover()); err != nil {
				out = outcome{err: err}
			}
			done <- out
		}()
		out.rows, out.err = a.source.ExecuteQuery(ctx, tenantID, q)
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return out.rows, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// sortRows orders a metric's rows by group key.
func sortRows(rows []Row) []Row {
	out := append([]Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}
