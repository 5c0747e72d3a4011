package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. They mirror the
// Prometheus report, query, cache and insight metrics for OTLP collectors.
type OTelMetrics struct {
	// Report metrics
	reportsTotal        metric.Int64Counter
	reportDuration      metric.Float64Histogram
	metricQueryDuration metric.Float64Histogram

	// Cache metrics
	cacheLookups metric.Int64Counter

	// Insight metrics
	insightsGenerated metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/byronwade/thorbis.com-sub011/analytics")

	m := &OTelMetrics{}
	var err error

	m.reportsTotal, err = meter.Int64Counter(
		"analytics.reports",
		metric.WithDescription("Total number of reports served"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics.reports counter: %w", err)
	}

	m.reportDuration, err = meter.Float64Histogram(
		"analytics.report.duration",
		metric.WithDescription("Report generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics.report.duration histogram: %w", err)
	}

	m.metricQueryDuration, err = meter.Float64Histogram(
		"analytics.metric_query.duration",
		metric.WithDescription("Per-metric query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics.metric_query.duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"analytics.cache.lookups",
		metric.WithDescription("Result cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics.cache.lookups counter: %w", err)
	}

	m.insightsGenerated, err = meter.Int64Counter(
		"analytics.insights",
		metric.WithDescription("Total number of insights generated"),
		metric.WithUnit("{insight}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics.insights counter: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordReport(source, status string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("report.source", source),
		attribute.String("report.status", status),
	)
	m.reportsTotal.Add(context.Background(), 1, attrs)
	m.reportDuration.Record(context.Background(), took.Seconds(), attrs)
}

func (m *OTelMetrics) recordMetricQuery(metricName, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.metricQueryDuration.Record(context.Background(), took.Seconds(), metric.WithAttributes(
		attribute.String("analytics.metric", metricName),
		attribute.String("query.status", status),
	))
}

func (m *OTelMetrics) recordCacheLookup(keyType, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache.key_type", keyType),
		attribute.String("cache.outcome", outcome),
	))
}

func (m *OTelMetrics) recordInsight(insightType string) {
	if m == nil {
		return
	}
	m.insightsGenerated.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("insight.type", insightType),
	))
}
