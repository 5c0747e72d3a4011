// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, report)
//	httputil.WriteBadRequest(w, "invalid request: unknown metric")
//	httputil.WriteForbidden(w, "tenant mismatch")
//	httputil.WriteTooManyRequests(w, resetIn, "rate limit exceeded")
//	httputil.WriteInternalError(w)
//
// Error bodies carry the request ID so clients can correlate failures with logs.
//
// # Request Parsing
//
//	var req analytics.ReportRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	tenant, ok := httputil.ParsePathStringOrError(w, r, "tenant")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)(router)
package httputil
