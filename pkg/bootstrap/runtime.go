// Package bootstrap wires configuration into the shared runtime of the
// analytics binaries: logger, metrics, database pools, cache and engine.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/config"
	"github.com/byronwade/thorbis.com-sub011/pkg/database"
	"github.com/byronwade/thorbis.com-sub011/pkg/middleware"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// dbMaintenanceInterval is how often replicas are health checked
const dbMaintenanceInterval = 30 * time.Second

// Runtime holds the long-lived dependencies of a binary
type Runtime struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	DB       *database.ConnectionManager
	Store    cache.Store
	Redis    *redis.Client
	Engine   *analytics.Engine
	OTel     *observability.OTelProviders

	stopMaintenance context.CancelFunc
}

// New builds the runtime for serviceName. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, serviceName string, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Observability.MetricsEnabled {
		rt.Metrics = observability.NewMetrics(rt.Registry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize OpenTelemetry, continuing without it")
	}
	rt.OTel = providers
	if providers != nil && rt.Metrics != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Warn("Failed to create OpenTelemetry metrics, exporting Prometheus only")
		} else {
			rt.Metrics.OTel = otelMetrics
		}
	}

	rt.DB, err = database.NewConnectionManager(cfg.Database, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	maintCtx, cancel := context.WithCancel(context.Background())
	rt.stopMaintenance = cancel
	rt.DB.StartMaintenance(maintCtx, dbMaintenanceInterval, rt.Metrics)

	rt.Store, err = cache.NewStore(cfg.Cache)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	if redisStore, ok := rt.Store.(*cache.RedisStore); ok {
		rt.Redis = redisStore.Client()
		if err := redisStore.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Redis is unreachable, cache reads will miss until it recovers")
		}
	}

	rt.Engine, err = NewEngine(cfg, analytics.NewPooledDataSource(rt.DB), rt.Store, logger, rt.Metrics)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"service":  serviceName,
		"replicas": rt.DB.ReplicaCount(),
		"cache":    cfg.Cache.Backend,
	}).Info("Runtime initialized")
	return rt, nil
}

// NewEngine builds the analytics engine, loading operator catalog and
// template files when configured.
func NewEngine(cfg *config.Config, source analytics.DataSource, store cache.Store, logger logrus.FieldLogger, metrics *observability.Metrics) (*analytics.Engine, error) {
	catalog, err := analytics.DefaultCatalog()
	if cfg.Engine.CatalogPath != "" {
		catalog, err = analytics.LoadCatalogFile(cfg.Engine.CatalogPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metric catalog: %w", err)
	}

	templates, err := analytics.DefaultTemplates(catalog)
	if cfg.Engine.TemplatesPath != "" {
		templates, err = analytics.LoadTemplatesFile(cfg.Engine.TemplatesPath, catalog)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard templates: %w", err)
	}

	engine, err := analytics.NewEngine(analytics.Options{
		DataSource: source,
		Cache:      store,
		Catalog:    catalog,
		Templates:  templates,
		Logger:     logger,
		Metrics:    metrics,
		Config:     cfg.AnalyticsConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics engine: %w", err)
	}
	return engine, nil
}

// RateLimiter returns the per-tenant API limiter, or nil when rate limiting
// is disabled. With a Redis cache the budget is shared across instances.
func (rt *Runtime) RateLimiter(ctx context.Context) middleware.Limiter {
	rl := rt.Config.RateLimit
	if !rl.Enabled {
		return nil
	}
	limits := middleware.RateLimitConfig{
		RequestsPerWindow: rl.RequestsPerWindow,
		WindowDuration:    rl.Window,
		BurstSize:         rl.Burst,
	}
	if rt.Redis != nil {
		return middleware.NewDistributedRateLimiter(rt.Redis, limits, rt.Config.Cache.KeyPrefix+"ratelimit")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx, rt.Logger)
	return limiter
}

// Close releases every dependency that was opened
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.stopMaintenance != nil {
		rt.stopMaintenance()
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	if rt.OTel != nil {
		if err := observability.ShutdownOTel(ctx, rt.OTel, rt.Logger); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}
