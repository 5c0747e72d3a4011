package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/async"
	"github.com/byronwade/thorbis.com-sub011/pkg/bootstrap"
	"github.com/byronwade/thorbis.com-sub011/pkg/config"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
	"github.com/byronwade/thorbis.com-sub011/pkg/warmer"
)

var (
	envFile = flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	runOnce = flag.Bool("run-once", false, "Warm templates and insights once and exit")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Fatal("Failed to load env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.New(ctx, cfg, "analytics-warmer", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize runtime")
	}

	w := warmer.New(rt.Engine, warmer.Config{
		Tenants:          cfg.Warmer.Tenants,
		TemplateSchedule: cfg.Warmer.TemplateSchedule,
		InsightSchedule:  cfg.Warmer.InsightSchedule,
		Workers:          cfg.Warmer.Workers,
	}, logger, rt.Metrics)

	// Run once mode (for backfills and smoke tests)
	if *runOnce {
		templateErr := w.WarmTemplates(ctx)
		insightErr := w.WarmInsights(ctx)
		if err := rt.Close(ctx); err != nil {
			logger.WithError(err).Warn("Failed to release runtime")
		}
		if templateErr != nil || insightErr != nil {
			os.Exit(1)
		}
		return
	}

	if len(cfg.Warmer.Tenants) == 0 {
		logger.Warn("No warmer tenants configured, scheduled runs will do nothing")
	}

	// Scheduled mode
	if cfg.Engine.TemplatesPath != "" {
		if err := bootstrap.WatchTemplates(ctx, rt.Engine, cfg.Engine.TemplatesPath, logger); err != nil {
			logger.WithError(err).Warn("Dashboard templates will not reload on change")
		}
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if err := w.Schedule(ctx, c); err != nil {
		logger.WithError(err).Fatal("Failed to schedule warm jobs")
	}
	c.Start()

	if cfg.Warmer.RunOnStart {
		async.SafeGo(observability.WithLogger(ctx, logger), 10*time.Minute, "initial warm", func(ctx context.Context) error {
			return errors.Join(w.WarmTemplates(ctx), w.WarmInsights(ctx))
		})
	}

	logger.WithFields(logrus.Fields{
		"tenants":           len(cfg.Warmer.Tenants),
		"template_schedule": cfg.Warmer.TemplateSchedule,
		"insight_schedule":  cfg.Warmer.InsightSchedule,
	}).Info("Analytics warmer started")

	// Health and metrics for the warmer process
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(rt.DB.Primary(), rt.Redis, "warmer").
		WithCheck("replicas", false, rt.DB.HealthCheck))
	healthRouter.Handle("/metrics", observability.MetricsHandler(rt.Registry)).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}
	go func() {
		defer observability.RecoverPanic(logger, "health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		// Running jobs have finished; release the pools they used.
		return rt.Close(ctx)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
