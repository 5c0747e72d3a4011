package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/httputil"
	"github.com/byronwade/thorbis.com-sub011/pkg/middleware"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

type stubEngine struct {
	tenant   string
	industry string
	table    string
	request  analytics.AnalyticsRequest
	err      error
}

func (s *stubEngine) GenerateReport(ctx context.Context, tenantID string, req analytics.AnalyticsRequest) (*analytics.AnalyticsResult, error) {
	s.tenant, s.request = tenantID, req
	if s.err != nil {
		return nil, s.err
	}
	return &analytics.AnalyticsResult{Summary: map[string]float64{"totalRevenue": 50000}}, nil
}

func (s *stubEngine) GetDashboardTemplates(industry string) []analytics.Dashboard {
	s.industry = industry
	return []analytics.Dashboard{{ID: "hs-overview", Industry: "hs"}}
}

func (s *stubEngine) GenerateInsights(ctx context.Context, tenantID, industry string) ([]analytics.Insight, error) {
	s.tenant, s.industry = tenantID, industry
	if s.err != nil {
		return nil, s.err
	}
	return []analytics.Insight{{ID: "i-1", Metric: "totalRevenue"}}, nil
}

func (s *stubEngine) InvalidateTable(ctx context.Context, tenantID, table string) (int, error) {
	s.tenant, s.table = tenantID, table
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

func newTestServer(t *testing.T, engine Engine) (*Server, *observability.Metrics, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewServer(engine, logger, metrics, nil), metrics, hook
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestGenerateReport(t *testing.T) {
	engine := &stubEngine{}
	s, metrics, _ := newTestServer(t, engine)

	w := do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports",
		`{"industry":"hs","metrics":["totalRevenue"],"timeRange":"month"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "org-1", engine.tenant)
	assert.Equal(t, []string{"totalRevenue"}, engine.request.Metrics)
	assert.Equal(t, analytics.TimeRange("month"), engine.request.TimeRange)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))

	var result analytics.AnalyticsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 50000.0, result.Summary["totalRevenue"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(
		http.MethodPost, "/api/v1/analytics/tenants/{tenant}/reports", "200")))
}

func TestGenerateReport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid request",
			err:        fmt.Errorf("%w: custom range needs start and end", analytics.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantBody:   "custom range needs start and end",
		},
		{
			name:       "tenant mismatch",
			err:        fmt.Errorf("%w: %w", analytics.ErrInvalidRequest, analytics.ErrTenantMismatch),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "internal failure",
			err:        errors.New("connection refused on 10.0.0.5"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, hook := newTestServer(t, &stubEngine{err: tt.err})

			w := do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", `{"metrics":["x"],"timeRange":"day"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "10.0.0.5")
				found := false
				for _, entry := range hook.AllEntries() {
					if entry.Message == "Analytics request failed" {
						found = true
						assert.Equal(t, "org-1", entry.Data["tenant_id"])
					}
				}
				assert.True(t, found, "internal failures are logged")
			}
		})
	}
}

func TestGenerateReport_BadBody(t *testing.T) {
	engine := &stubEngine{}
	s, _, _ := newTestServer(t, engine)

	for _, body := range []string{"", "{", `{"metrics":["a"],"unknown":1}`} {
		w := do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Empty(t, engine.tenant, "engine must not be called for undecodable bodies")

	big := `{"metrics":["` + strings.Repeat("a", maxRequestBytes) + `"]}`
	w := do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGenerateInsights(t *testing.T) {
	engine := &stubEngine{}
	s, _, _ := newTestServer(t, engine)

	w := do(s, http.MethodGet, "/api/v1/analytics/tenants/org-2/insights?industry=hs", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org-2", engine.tenant)
	assert.Equal(t, "hs", engine.industry)

	var insights []analytics.Insight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &insights))
	require.Len(t, insights, 1)
	assert.Equal(t, "totalRevenue", insights[0].Metric)
}

func TestInvalidateTable(t *testing.T) {
	engine := &stubEngine{}
	s, _, _ := newTestServer(t, engine)

	w := do(s, http.MethodDelete, "/api/v1/analytics/tenants/org-1/cache/tables/invoices", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "invoices", engine.table)
	var resp InvalidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, InvalidationResponse{Table: "invoices", Removed: 3}, resp)
}

func TestGetTemplates(t *testing.T) {
	engine := &stubEngine{}
	s, _, _ := newTestServer(t, engine)

	w := do(s, http.MethodGet, "/api/v1/analytics/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", engine.industry)

	w = do(s, http.MethodGet, "/api/v1/analytics/templates?industry=hs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hs", engine.industry)
}

func TestRoutes_MethodAndPath(t *testing.T) {
	s, _, _ := newTestServer(t, &stubEngine{})

	wrongMethod := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/analytics/tenants/org-1/reports"},
		{http.MethodPost, "/api/v1/analytics/tenants/org-1/insights"},
		{http.MethodGet, "/api/v1/analytics/tenants/org-1/cache/tables/invoices"},
		{http.MethodPost, "/api/v1/analytics/templates"},
	}
	for _, tt := range wrongMethod {
		w := do(s, tt.method, tt.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tt.method, tt.path)
		assert.Contains(t, w.Body.String(), "not allowed")
	}

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/analytics/unknown", "").Code)
}

func TestSpanNamedByRouteTemplate(t *testing.T) {
	s, _, _ := newTestServer(t, &stubEngine{})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "GET unmatched")
	r := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/tenants/org-secret/insights", nil).WithContext(ctx)
	s.ServeHTTP(httptest.NewRecorder(), r)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET /api/v1/analytics/tenants/{tenant}/insights", ended[0].Name())
	assert.NotContains(t, ended[0].Name(), "org-secret")
}

func TestServer_WithEngine(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	source := analytics.DataSourceFunc(func(ctx context.Context, tenantID string, q *analytics.Query) ([]analytics.Row, error) {
		if q.Metric == "totalRevenue" {
			return []analytics.Row{{Value: 50000}}, nil
		}
		return []analytics.Row{{Value: 120}}, nil
	})

	logger, _ := test.NewNullLogger()
	engine, err := analytics.NewEngine(analytics.Options{
		DataSource: source,
		Cache:      cache.NewMemoryStore(100, time.Hour),
		Logger:     logger,
		Clock:      func() time.Time { return now },
	})
	require.NoError(t, err)

	s := NewServer(engine, logger, nil, nil)
	body := `{"industry":"hs","metrics":["totalRevenue","activeCustomers"],"timeRange":"month"}`

	w := do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result analytics.AnalyticsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 50000.0, result.Summary["totalRevenue"])
	assert.Equal(t, 120.0, result.Summary["activeCustomers"])
	assert.False(t, result.Metadata.Cached)

	w = do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", body)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Metadata.Cached)

	w = do(s, http.MethodPost, "/api/v1/analytics/tenants/org-1/reports", `{"metrics":["totalRevenue"],"timeRange":"custom"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantRoutes_RateLimited(t *testing.T) {
	logger, _ := test.NewNullLogger()
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	s := NewServer(&stubEngine{}, logger, nil, limiter)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/analytics/tenants/org-1/insights", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/api/v1/analytics/tenants/org-1/insights", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/analytics/tenants/org-2/insights", "").Code)

	// Templates are not tenant scoped
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/analytics/templates", "").Code)
	}
}
