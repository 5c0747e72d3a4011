// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes the ambient infrastructure shared by the analytics
// server and warmer: JSON logging through logrus, report and cache metrics,
// dependency health checks, graceful shutdown and tracing setup.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger("info", os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("Report generated")
//
// Request-scoped logging:
//
//	observability.FromContext(ctx).WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveReport("compute", "success", took)
//	metrics.RecordCacheHit("report")
//
// The recorder helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version).
//		WithCheck("replicas", false, connManager.HealthCheck)
//	observability.RegisterHealthRoutes(router, checker)
//
// PostgreSQL is required; Redis is optional and only degrades the status.
// Extra probes registered with WithCheck are required or optional the same way.
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		ServiceName: "analytics-server",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Mirror the report and cache metrics to the OTLP collector:
//
//	metrics.OTel, err = observability.NewOTelMetrics()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
