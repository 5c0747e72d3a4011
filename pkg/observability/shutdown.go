package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one resource (DB pools, cache, OTel providers)
type ShutdownFunc func(context.Context) error

// ShutdownManager drains HTTP servers and then releases resources. Each
// phase gets the full timeout, so a server that cannot drain does not eat
// the time resources need to flush.
type ShutdownManager struct {
	logger  logrus.FieldLogger
	servers []*http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager creates a manager for servers. Nil servers are
// skipped; a zero timeout means 30s.
func NewShutdownManager(logger logrus.FieldLogger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}
	return &ShutdownManager{
		logger:  logger,
		servers: servers,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds fn to run after the servers have drained
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then calls Shutdown
func (sm *ShutdownManager) WaitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sm.logger.Info("Received shutdown signal, draining")
	return sm.Shutdown()
}

// Shutdown drains every server, then runs the registered functions
// concurrently. Errors from both phases are joined.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error
	for _, server := range sm.servers {
		if server == nil {
			continue
		}
		sm.logger.WithField("addr", server.Addr).Info("Draining HTTP server")
		if err := server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).WithField("addr", server.Addr).Error("HTTP server did not drain")
			errs = append(errs, fmt.Errorf("server %s: %w", server.Addr, err))
		}
	}

	resourceCtx, cancelResources := context.WithTimeout(context.Background(), sm.timeout)
	defer cancelResources()
	if err := sm.runFuncs(resourceCtx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

func (sm *ShutdownManager) runFuncs(ctx context.Context) error {
	sm.mu.Lock()
	funcs := append([]ShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	results := make(chan error, len(funcs))
	for _, fn := range funcs {
		go func(fn ShutdownFunc) {
			results <- fn(ctx)
		}(fn)
	}

	var errs []error
	for range funcs {
		select {
		case err := <-results:
			if err != nil {
				sm.logger.WithError(err).Error("Resource shutdown failed")
				errs = append(errs, err)
			}
		case <-ctx.Done():
			sm.logger.Warn("Shutdown timeout reached, abandoning remaining resources")
			return errors.Join(append(errs, fmt.Errorf("shutdown timeout reached: %w", ctx.Err()))...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
