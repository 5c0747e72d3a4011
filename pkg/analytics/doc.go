// Package analytics computes multi-tenant business reports from per-industry
// metric catalogs.
//
// # Overview
//
// An Engine turns an AnalyticsRequest (metric names, a time range, optional
// filters, grouping and comparison period) into an AnalyticsResult with rows,
// per-metric summaries, trends against the preceding window and optional
// comparisons. Results are cached per tenant under a canonical request hash.
//
// # Catalog
//
// Metrics are declared in catalog.yaml, one partition per industry tag:
//
//	hs    Home Services
//	rest  Restaurant
//	auto  Automotive Repair
//	ret   Retail
//
// The catalog is validated when it is loaded. Table, field and dimension names
// must be plain SQL identifiers and ratio metrics must declare numerator and
// denominator calculations.
//
// # Usage Example
//
//	engine, err := analytics.NewEngine(analytics.Options{
//		DataSource: analytics.NewSQLDataSource(db),
//		Cache:      store,
//		Logger:     logger,
//		Metrics:    metrics,
//		Config:     analytics.DefaultConfig(),
//	})
//
//	result, err := engine.GenerateReport(ctx, "org-1", analytics.AnalyticsRequest{
//		Industry:  "hs",
//		Metrics:   []string{"totalRevenue", "activeCustomers"},
//		TimeRange: analytics.RangeMonth,
//	})
//	fmt.Printf("revenue %.2f (%s)\n", result.Summary["totalRevenue"],
//		result.Trends["totalRevenue"].Direction)
//
// # Failure Handling
//
// Malformed requests fail with ErrInvalidRequest before any query runs. Unknown
// metrics, metrics that reject the caller's filters and metrics whose queries
// fail or time out are dropped from the result and listed in
// Metadata.Warnings. Cache failures are treated as misses.
//
// # Insights
//
// GenerateInsights reads weekly buckets of every metric and runs four
// independent scans (revenue trend, customer behavior, anomaly detection and
// sustained growth) with thresholds from InsightConfig.
package analytics
