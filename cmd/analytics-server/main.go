package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/api"
	"github.com/byronwade/thorbis.com-sub011/pkg/bootstrap"
	"github.com/byronwade/thorbis.com-sub011/pkg/config"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Fatal("Failed to load env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	rt, err := bootstrap.New(ctx, cfg, cfg.Observability.OTelServiceName, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize runtime")
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if cfg.Engine.TemplatesPath != "" {
		if err := bootstrap.WatchTemplates(bgCtx, rt.Engine, cfg.Engine.TemplatesPath, logger); err != nil {
			logger.WithError(err).Warn("Dashboard templates will not reload on change")
		}
	}

	apiServer := api.NewServer(rt.Engine, logger, rt.Metrics, rt.RateLimiter(bgCtx))
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port for k8s probes
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(rt.DB.Primary(), rt.Redis, version).
		WithCheck("replicas", false, rt.DB.HealthCheck))
	healthRouter.Handle("/metrics", observability.MetricsHandler(rt.Registry)).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.RegisterShutdownFunc(rt.Close)

	for _, srv := range []*http.Server{httpServer, healthServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server")
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).WithField("addr", srv.Addr).Fatal("HTTP server failed")
			}
		}(srv)
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
