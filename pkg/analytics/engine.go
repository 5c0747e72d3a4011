package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
	"github.com/byronwade/thorbis.com-sub011/pkg/query"
)

// Config tunes the engine.
type Config struct {
	CacheTTL        time.Duration
	InsightCacheTTL time.Duration
	QueryTimeout    time.Duration
	MaxConcurrency  int
	StableBand      float64
	Insights        InsightConfig
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		CacheTTL:        5 * time.Minute,
		InsightCacheTTL: 15 * time.Minute,
		QueryTimeout:    10 * time.Second,
		MaxConcurrency:  8,
		StableBand:      DefaultStableBand,
		Insights:        DefaultInsightConfig(),
	}
}

// Options are the collaborators of an Engine. DataSource is required; nil
// fields fall back to defaults.
type Options struct {
	DataSource DataSource
	Cache      cache.Store
	Catalog    *Catalog
	Templates  *TemplateSet
	Logger     logrus.FieldLogger
	Metrics    *observability.Metrics
	Config     Config
	Clock      func() time.Time
}

// Engine generates reports, dashboard templates and insights for tenants.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	catalog    *Catalog
	templates  atomic.Pointer[TemplateSet]
	cache      *resultCache
	store      cache.Store
	aggregator *Aggregator
	insights   *InsightGenerator
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	config     Config
	now        func() time.Time
	flight     singleflight.Group
	tracer     trace.Tracer
}

// NewEngine creates a new engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.DataSource == nil {
		return nil, fmt.Errorf("analytics engine requires a data source")
	}

	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.CacheTTL < 0 || cfg.InsightCacheTTL < 0 {
		return nil, fmt.Errorf("cache TTLs must not be negative")
	}
	if cfg.StableBand < 0 {
		return nil, fmt.Errorf("stable band must not be negative")
	}
	if err := cfg.Insights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid insight config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "analytics")

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	templates := opts.Templates
	if templates == nil {
		var err error
		if templates, err = DefaultTemplates(catalog); err != nil {
			return nil, err
		}
	}

	store := opts.Cache
	if store == nil {
		store = cache.NoopStore{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		catalog:    catalog,
		cache:      &resultCache{store: store, logger: logger, metrics: opts.Metrics},
		store:      store,
		aggregator: NewAggregator(opts.DataSource, logger, opts.Metrics, cfg.QueryTimeout, cfg.MaxConcurrency),
		insights:   NewInsightGenerator(cfg.Insights, logger, opts.Metrics, clock),
		logger:     logger,
		metrics:    opts.Metrics,
		config:     cfg,
		now:        clock,
		tracer:     newTracer(),
	}
	e.templates.Store(templates)
	return e, nil
}

// Catalog returns the engine's metric catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Templates returns the engine's current dashboard templates.
func (e *Engine) Templates() *TemplateSet {
	return e.templates.Load()
}

// ReloadTemplates replaces the dashboard templates with the contents of path.
// The file is validated against the engine's catalog; on error the current
// templates stay in place.
func (e *Engine) ReloadTemplates(path string) error {
	templates, err := LoadTemplatesFile(path, e.catalog)
	if err != nil {
		return err
	}
	e.templates.Store(templates)
	e.logger.WithFields(logrus.Fields{
		"path":       path,
		"dashboards": len(templates.ForIndustry("")),
	}).Info("Reloaded dashboard templates")
	return nil
}

// GenerateReport computes the report for req on behalf of tenantID.
//
// Requests with an invalid shape fail with ErrInvalidRequest before any query
// runs. Unknown metrics and failing queries are dropped and reported in
// Metadata.Warnings. Results are served from cache when an identical request
// was computed within the cache TTL.
func (e *Engine) GenerateReport(ctx context.Context, tenantID string, req AnalyticsRequest) (*AnalyticsResult, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "analytics.GenerateReport", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("industry", req.Industry),
		attribute.Int("metrics", len(req.Metrics)),
	))
	defer span.End()

	logger := observability.LoggerWithTraceContext(ctx, e.logger.WithField("tenant_id", tenantID))

	if err := e.checkRequest(tenantID, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		e.metrics.ObserveReport("compute", "invalid", time.Since(start))
		return nil, err
	}
	req = normalizeRequest(tenantID, req)

	current, err := ResolveWindow(req.TimeRange, req.StartDate, req.EndDate, e.now())
	if err != nil {
		return nil, err
	}
	var comparison *Window
	if req.Comparison != nil {
		w, err := ComparisonWindow(current, *req.Comparison)
		if err != nil {
			return nil, err
		}
		comparison = &w
	}

	key, err := ReportCacheKey(tenantID, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var cached AnalyticsResult
	if e.cache.load(ctx, tenantID, key, "report", &cached) {
		cached.Metadata.Cached = true
		cached.Metadata.Took = time.Since(start)
		span.SetAttributes(attribute.Bool("cached", true))
		e.metrics.ObserveReport("cache", "success", cached.Metadata.Took)
		return &cached, nil
	}

	v, err, shared := e.flight.Do(tenantID+"|"+key, func() (interface{}, error) {
		detached := context.WithoutCancel(ctx)
		result, tables, cacheable := e.compute(detached, logger, tenantID, req, current, comparison)
		result.Metadata.Took = time.Since(start)

		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		if cacheable && e.config.CacheTTL > 0 {
			e.cache.save(detached, tenantID, key, "report", data, e.config.CacheTTL, tableTags(tables))
		}
		return data, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveReport("compute", "error", time.Since(start))
		return nil, err
	}

	var result AnalyticsResult
	if err := json.Unmarshal(v.([]byte), &result); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if shared {
		result.Metadata.Took = time.Since(start)
	}

	status := "success"
	if len(result.Metadata.Warnings) > 0 {
		status = "partial"
	}
	span.SetAttributes(attribute.Bool("cached", false), attribute.Int("rows", result.Metadata.TotalRows))
	e.metrics.ObserveReport("compute", status, time.Since(start))
	return &result, nil
}

func (e *Engine) checkRequest(tenantID string, req AnalyticsRequest) error {
	if err := ValidateRequest(tenantID, req); err != nil {
		return err
	}
	if req.Industry != "" && !e.catalog.HasIndustry(req.Industry) {
		return fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrUnknownIndustry, req.Industry)
	}
	return nil
}

// compute resolves, plans and executes every metric of req. It reports the
// tables read and whether the result may be cached: results missing a metric
// because of an execution failure are not cached.
func (e *Engine) compute(ctx context.Context, logger logrus.FieldLogger, tenantID string, req AnalyticsRequest, current Window, comparison *Window) (*AnalyticsResult, []string, bool) {
	var (
		units    []metricUnit
		warnings []string
		tables   = make(map[string]bool)
	)

	windows := []Window{current, PreviousWindow(current)}
	if comparison != nil {
		windows = append(windows, *comparison)
	}

	for _, name := range req.Metrics {
		def, err := e.catalog.Lookup(req.Industry, name)
		if err != nil {
			reason := "unknown_metric"
			if errors.Is(err, ErrAmbiguousMetric) {
				reason = "ambiguous_metric"
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
			logger.WithField("metric", name).WithError(err).Warn("Dropping unresolved metric")
			e.metrics.RecordWarning(reason)
			continue
		}

		unit := metricUnit{def: def}
		for _, w := range windows {
			q, err := PlanQuery(def, tenantID, w, req.Filters, req.GroupBy)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
				logger.WithField("metric", name).WithError(err).Warn("Dropping metric that cannot be planned")
				e.metrics.RecordWarning("invalid_filter")
				unit.queries = nil
				break
			}
			unit.queries = append(unit.queries, q)
		}
		if unit.queries == nil {
			continue
		}

		units = append(units, unit)
		tables[def.Table] = true
	}

	results := e.aggregator.Execute(ctx, tenantID, units)

	result := &AnalyticsResult{
		Data:    []ResultRow{},
		Summary: make(map[string]float64, len(units)),
		Trends:  make(map[string]Trend, len(units)),
	}
	if comparison != nil {
		result.Comparisons = make(map[string]Comparison, len(units))
	}

	cacheable := true
	for i, unit := range units {
		name := unit.def.Name
		res := results[i]
		if res.err != nil {
			cacheable = false
			warnings = append(warnings, fmt.Sprintf("%s: query failed", name))
			logger.WithFields(logrus.Fields{
				"metric": name,
				"table":  unit.def.Table,
			}).WithError(res.err).Error("Metric query failed")
			e.metrics.RecordWarning("query_failed")
			continue
		}

		for _, row := range sortRows(res.rows[0]) {
			result.Data = append(result.Data, ResultRow{Metric: name, Value: finite(row.Value), Group: row.Group})
		}

		value := sumRows(res.rows[0])
		result.Summary[name] = value
		result.Trends[name] = NewTrend(value, sumRows(res.rows[1]), e.config.StableBand)
		if comparison != nil {
			result.Comparisons[name] = NewComparison(value, sumRows(res.rows[2]), e.config.StableBand)
		}
	}

	result.Metadata = ResultMetadata{
		TotalRows:   len(result.Data),
		Granularity: Granularity(req.TimeRange, current),
		GeneratedAt: e.now().UTC(),
		Window:      current,
		Comparison:  comparison,
		Warnings:    warnings,
	}

	return result, sortedTables(tables), cacheable
}

// GetDashboardTemplates returns the starter dashboards for industry, or all of
// them when industry is empty.
func (e *Engine) GetDashboardTemplates(industry string) []Dashboard {
	return e.templates.Load().ForIndustry(industry)
}

// GenerateInsights scans the tenant's recent metric history for industry, or
// for every industry when it is empty. Metrics whose history cannot be read
// are skipped; scans that fail are left out of the result.
func (e *Engine) GenerateInsights(ctx context.Context, tenantID, industry string) ([]Insight, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "analytics.GenerateInsights", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("industry", industry),
	))
	defer span.End()

	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	industries := e.catalog.Industries()
	if industry != "" {
		if !e.catalog.HasIndustry(industry) {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrUnknownIndustry, industry)
		}
		industries = []string{industry}
	}

	logger := observability.LoggerWithTraceContext(ctx, e.logger.WithField("tenant_id", tenantID))
	key := insightCacheKey(industry)

	var cached []Insight
	if e.cache.load(ctx, tenantID, key, "insights", &cached) {
		span.SetAttributes(attribute.Bool("cached", true))
		e.metrics.ObserveReport("insights_cache", "success", time.Since(start))
		return cached, nil
	}

	v, err, _ := e.flight.Do(tenantID+"|"+key, func() (interface{}, error) {
		detached := context.WithoutCancel(ctx)
		series, tables, complete := e.history(detached, logger, tenantID, industries)
		insights := e.insights.Generate(series)

		data, err := json.Marshal(insights)
		if err != nil {
			return nil, fmt.Errorf("failed to encode insights: %w", err)
		}
		if complete && e.config.InsightCacheTTL > 0 {
			e.cache.save(detached, tenantID, key, "insights", data, e.config.InsightCacheTTL, tableTags(tables))
		}
		return data, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveReport("insights", "error", time.Since(start))
		return nil, err
	}

	var insights []Insight
	if err := json.Unmarshal(v.([]byte), &insights); err != nil {
		return nil, fmt.Errorf("failed to decode insights: %w", err)
	}
	span.SetAttributes(attribute.Int("insights", len(insights)))
	e.metrics.ObserveReport("insights", "success", time.Since(start))
	return insights, nil
}

// history reads HistoryBuckets consecutive buckets for every metric of the
// given industries. It reports whether every metric could be read.
func (e *Engine) history(ctx context.Context, logger logrus.FieldLogger, tenantID string, industries []string) ([]MetricSeries, []string, bool) {
	cfg := e.config.Insights
	windows := HistoryWindows(e.now(), cfg.BucketDuration, cfg.HistoryBuckets)

	var (
		units    []metricUnit
		owners   []string
		tables   = make(map[string]bool)
		complete = true
	)
	for _, industry := range industries {
		defs, err := e.catalog.Metrics(industry)
		if err != nil {
			continue
		}
		for _, def := range defs {
			unit := metricUnit{def: def}
			for _, w := range windows {
				q, err := PlanQuery(def, tenantID, w, nil, nil)
				if err != nil {
					logger.WithField("metric", def.Name).WithError(err).Warn("Skipping metric history")
					unit.queries = nil
					break
				}
				unit.queries = append(unit.queries, q)
			}
			if unit.queries == nil {
				continue
			}
			units = append(units, unit)
			owners = append(owners, industry)
			tables[def.Table] = true
		}
	}

	results := e.aggregator.Execute(ctx, tenantID, units)

	series := make([]MetricSeries, 0, len(units))
	for i, unit := range units {
		if results[i].err != nil {
			complete = false
			logger.WithField("metric", unit.def.Name).WithError(results[i].err).Warn("Metric history unavailable")
			continue
		}
		values := make([]float64, len(results[i].rows))
		for j, rows := range results[i].rows {
			values[j] = sumRows(rows)
		}
		series = append(series, MetricSeries{Industry: owners[i], Metric: unit.def, Values: values})
	}

	return series, sortedTables(tables), complete
}

// InvalidateTable drops every cached report and insight set of the tenant
// that read table. It returns the number of entries removed.
func (e *Engine) InvalidateTable(ctx context.Context, tenantID, table string) (int, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return 0, err
	}
	if !query.ValidIdentifier(table) {
		return 0, fmt.Errorf("%w: invalid table %q", ErrInvalidRequest, table)
	}

	n, err := e.store.InvalidateTags(ctx, tenantID, cache.TableTag(table))
	if err != nil {
		e.metrics.RecordCacheError("report", "invalidate")
		return 0, fmt.Errorf("failed to invalidate %s: %w", table, err)
	}

	e.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"table":     table,
		"removed":   n,
	}).Info("Invalidated cached results")
	return n, nil
}

func sortedTables(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
