package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/httputil"
	"github.com/byronwade/thorbis.com-sub011/pkg/middleware"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// maxRequestBytes bounds report request bodies
const maxRequestBytes = 1 << 20

// Engine is the analytics surface served over HTTP
type Engine interface {
	GenerateReport(ctx context.Context, tenantID string, req analytics.AnalyticsRequest) (*analytics.AnalyticsResult, error)
	GetDashboardTemplates(industry string) []analytics.Dashboard
	GenerateInsights(ctx context.Context, tenantID, industry string) ([]analytics.Insight, error)
	InvalidateTable(ctx context.Context, tenantID, table string) (int, error)
}

// Server represents our API server
type Server struct {
	engine  Engine
	router  *mux.Router
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	limiter middleware.Limiter
}

// NewServer creates a new API server. metrics and limiter may be nil; a nil
// limiter leaves tenant routes unlimited.
func NewServer(engine Engine, logger logrus.FieldLogger, metrics *observability.Metrics, limiter middleware.Limiter) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		engine:  engine,
		router:  mux.NewRouter(),
		logger:  logger,
		metrics: metrics,
		limiter: limiter,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(s.logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	)
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))
	}
	s.router.Use(nameSpanByRoute)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
	})

	// Routes hang off the root router: mux reports a method mismatch as
	// 405 only for routes it can see at the top level.
	const prefix = "/api/v1/analytics"
	tenantScoped := func(h http.Handler) http.Handler {
		if s.limiter == nil {
			return h
		}
		return middleware.TenantRateLimit(s.limiter, s.metrics)(h)
	}

	s.router.Handle(prefix+"/tenants/{tenant}/reports",
		tenantScoped(httputil.MaxBytesMiddleware(maxRequestBytes)(http.HandlerFunc(s.generateReport)))).Methods(http.MethodPost)
	s.router.Handle(prefix+"/tenants/{tenant}/insights",
		tenantScoped(http.HandlerFunc(s.generateInsights))).Methods(http.MethodGet)
	s.router.Handle(prefix+"/tenants/{tenant}/cache/tables/{table}",
		tenantScoped(http.HandlerFunc(s.invalidateTable))).Methods(http.MethodDelete)

	s.router.HandleFunc(prefix+"/templates", s.getTemplates).Methods(http.MethodGet)
}

// Router exposes the route table so other handlers can be mounted next to it
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the instrumented root handler. Spans start out named by
// method and are renamed to the matched route template once mux has routed
// the request, so tenant ids never reach span names.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "analytics-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " unmatched"
		}),
	)
}

// spanName is the span name for a routed request
func spanName(r *http.Request) string {
	return r.Method + " " + routeTemplate(r)
}

func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetName(spanName(r))
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routeTemplate labels metrics by the matched route rather than the raw path
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
