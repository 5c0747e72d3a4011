package api

import (
	"errors"
	"net/http"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/contextkeys"
	"github.com/byronwade/thorbis.com-sub011/pkg/httputil"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// InvalidationResponse reports how many cached results were dropped
type InvalidationResponse struct {
	Table   string `json:"table"`
	Removed int    `json:"removed"`
}

// generateReport handles POST /api/v1/analytics/tenants/{tenant}/reports
func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	r, tenant, ok := s.tenantRequest(w, r)
	if !ok {
		return
	}

	var req analytics.AnalyticsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.engine.GenerateReport(r.Context(), tenant, req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, result)
}

// generateInsights handles GET /api/v1/analytics/tenants/{tenant}/insights
// Query params:
//   - industry: restrict the scan to one industry (default: all)
func (s *Server) generateInsights(w http.ResponseWriter, r *http.Request) {
	r, tenant, ok := s.tenantRequest(w, r)
	if !ok {
		return
	}

	insights, err := s.engine.GenerateInsights(r.Context(), tenant, httputil.ParseQueryString(r, "industry", ""))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, insights)
}

// invalidateTable handles DELETE /api/v1/analytics/tenants/{tenant}/cache/tables/{table}
func (s *Server) invalidateTable(w http.ResponseWriter, r *http.Request) {
	r, tenant, ok := s.tenantRequest(w, r)
	if !ok {
		return
	}
	table, ok := httputil.ParsePathStringOrError(w, r, "table")
	if !ok {
		return
	}

	removed, err := s.engine.InvalidateTable(r.Context(), tenant, table)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, InvalidationResponse{Table: table, Removed: removed})
}

// getTemplates handles GET /api/v1/analytics/templates
// Query params:
//   - industry: only return dashboards for this industry (default: all)
func (s *Server) getTemplates(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.engine.GetDashboardTemplates(httputil.ParseQueryString(r, "industry", "")))
}

// tenantRequest reads the tenant path parameter and records it in the request context
func (s *Server) tenantRequest(w http.ResponseWriter, r *http.Request) (*http.Request, string, bool) {
	tenant, ok := httputil.ParsePathStringOrError(w, r, "tenant")
	if !ok {
		return r, "", false
	}
	return r.WithContext(contextkeys.WithTenantID(r.Context(), tenant)), tenant, true
}

// writeEngineError maps engine errors onto HTTP status codes
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrTenantMismatch):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, analytics.ErrInvalidRequest):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Analytics request failed")
		httputil.WriteInternalError(w)
	}
}
