// Package api provides the HTTP REST adapter for the analytics engine.
//
// # Overview
//
// The API is built on gorilla/mux. Every tenant-scoped route carries the
// tenant in its path; the engine enforces that a request body naming another
// tenant is refused.
//
// # Endpoints
//
//	POST   /api/v1/analytics/tenants/{tenant}/reports
//	GET    /api/v1/analytics/tenants/{tenant}/insights?industry=
//	DELETE /api/v1/analytics/tenants/{tenant}/cache/tables/{table}
//	GET    /api/v1/analytics/templates?industry=
//
// # Error Mapping
//
//   - ErrTenantMismatch: 403
//   - ErrInvalidRequest: 400
//   - anything else: 500 with the cause logged, never returned
//
// # Usage
//
//	server := api.NewServer(engine, logger, metrics, limiter)
//	http.ListenAndServe(":8080", server.Handler())
//
// Handler wraps the router with OpenTelemetry HTTP instrumentation.
package api
