package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// The Record*/Observe* helpers are safe to call on a nil *Metrics so that
// components can be constructed without a registry (tests, embedded use).
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Report metrics
	ReportsTotal        *prometheus.CounterVec
	ReportDuration      *prometheus.HistogramVec
	MetricQueriesTotal  *prometheus.CounterVec
	MetricQueryDuration *prometheus.HistogramVec
	ReportWarningsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Insight metrics
	InsightsGeneratedTotal   *prometheus.CounterVec
	InsightScanFailuresTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Background job metrics
	JobRunsTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDecisionsTotal *prometheus.CounterVec

	// OTel mirrors report, query, cache and insight metrics when set
	OTel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		// Report metrics
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_reports_total",
				Help: "Total number of generated reports",
			},
			[]string{"source", "status"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_report_duration_seconds",
				Help:    "Report generation duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		MetricQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_metric_queries_total",
				Help: "Total number of per-metric query units executed",
			},
			[]string{"metric", "status"},
		),
		MetricQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_metric_query_duration_seconds",
				Help:    "Per-metric query unit duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		ReportWarningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_report_warnings_total",
				Help: "Total number of metrics dropped from reports",
			},
			[]string{"reason"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_cache_errors_total",
				Help: "Total number of cache backend errors",
			},
			[]string{"key_type", "operation"},
		),

		// Insight metrics
		InsightsGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_insights_generated_total",
				Help: "Total number of insights generated",
			},
			[]string{"type"},
		),
		InsightScanFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_insight_scan_failures_total",
				Help: "Total number of failed insight scans",
			},
			[]string{"scan"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analytics_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analytics_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analytics_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "analytics_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Background job metrics
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job", "status"},
		),

		// Rate limit metrics
		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_rate_limit_decisions_total",
				Help: "Total number of tenant rate limit decisions",
			},
			[]string{"decision"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.ReportsTotal,
		m.ReportDuration,
		m.MetricQueriesTotal,
		m.MetricQueryDuration,
		m.ReportWarningsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.InsightsGeneratedTotal,
		m.InsightScanFailuresTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.JobRunsTotal,
		m.RateLimitDecisionsTotal,
	)

	return m
}

// ObserveReport records a finished report. source is "cache" or "compute".
func (m *Metrics) ObserveReport(source, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(source, status).Inc()
	m.ReportDuration.WithLabelValues(source).Observe(took.Seconds())
	m.OTel.recordReport(source, status, took)
}

// ObserveMetricQuery records one per-metric query unit.
func (m *Metrics) ObserveMetricQuery(metric, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.MetricQueriesTotal.WithLabelValues(metric, status).Inc()
	m.MetricQueryDuration.WithLabelValues(metric).Observe(took.Seconds())
	m.OTel.recordMetricQuery(metric, status, took)
}

// RecordWarning counts a metric dropped from a report.
func (m *Metrics) RecordWarning(reason string) {
	if m == nil {
		return
	}
	m.ReportWarningsTotal.WithLabelValues(reason).Inc()
}

// RecordCacheHit counts a cache hit.
func (m *Metrics) RecordCacheHit(keyType string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(keyType).Inc()
	m.OTel.recordCacheLookup(keyType, "hit")
}

// RecordCacheMiss counts a cache miss.
func (m *Metrics) RecordCacheMiss(keyType string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(keyType).Inc()
	m.OTel.recordCacheLookup(keyType, "miss")
}

// RecordCacheError counts a cache backend failure.
func (m *Metrics) RecordCacheError(keyType, operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(keyType, operation).Inc()
	m.OTel.recordCacheLookup(keyType, "error")
}

// RecordInsight counts a generated insight.
func (m *Metrics) RecordInsight(insightType string) {
	if m == nil {
		return
	}
	m.InsightsGeneratedTotal.WithLabelValues(insightType).Inc()
	m.OTel.recordInsight(insightType)
}

// RecordScanFailure counts a failed insight scan.
func (m *Metrics) RecordScanFailure(scan string) {
	if m == nil {
		return
	}
	m.InsightScanFailuresTotal.WithLabelValues(scan).Inc()
}

// RecordJobRun counts a background job run.
func (m *Metrics) RecordJobRun(job, status string) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordRateLimit counts a rate limit decision: allowed, limited or error.
func (m *Metrics) RecordRateLimit(decision string) {
	if m == nil {
		return
	}
	m.RateLimitDecisionsTotal.WithLabelValues(decision).Inc()
}

// UpdateDBStats copies database pool statistics into the DB gauges.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// routeName maps a request to a low-cardinality label; nil uses the URL path.
func HTTPMetricsMiddleware(metrics *Metrics, routeName func(*http.Request) string) func(http.Handler) http.Handler {
	if routeName == nil {
		routeName = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeName(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
