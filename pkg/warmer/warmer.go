// Package warmer precomputes dashboard reports and insights on a schedule so
// interactive requests are served from cache.
package warmer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/analytics"
	"github.com/byronwade/thorbis.com-sub011/pkg/async"
	"github.com/byronwade/thorbis.com-sub011/pkg/contextkeys"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

const (
	jobTemplates = "warm_templates"
	jobInsights  = "warm_insights"

	// taskTimeout bounds one report or insight computation
	taskTimeout = 2 * time.Minute
)

// Engine is the part of the analytics engine the warmer drives
type Engine interface {
	GenerateReport(ctx context.Context, tenantID string, req analytics.AnalyticsRequest) (*analytics.AnalyticsResult, error)
	GenerateInsights(ctx context.Context, tenantID, industry string) ([]analytics.Insight, error)
	Templates() *analytics.TemplateSet
}

// Config selects what is warmed and how often
type Config struct {
	Tenants          []string
	TemplateSchedule string
	InsightSchedule  string
	Workers          int
}

// Warmer fills the result cache for configured tenants
type Warmer struct {
	engine  Engine
	config  Config
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// New creates a warmer for the engine's dashboard widgets
func New(engine Engine, cfg Config, logger logrus.FieldLogger, metrics *observability.Metrics) *Warmer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Warmer{
		engine:  engine,
		config:  cfg,
		logger:  logger.WithField("component", "warmer"),
		metrics: metrics,
	}
}

type reportJob struct {
	tenant string
	widget analytics.IndustryWidget
}

// WarmTemplates computes every dashboard widget report for every tenant.
// Widgets are read from the engine on each run so reloaded templates are
// picked up. A failing widget is logged and does not stop the run.
func (w *Warmer) WarmTemplates(ctx context.Context) error {
	widgets := w.engine.Templates().Widgets()
	jobs := make([]reportJob, 0, len(w.config.Tenants)*len(widgets))
	for _, tenant := range w.config.Tenants {
		for _, widget := range widgets {
			jobs = append(jobs, reportJob{tenant: tenant, widget: widget})
		}
	}

	errs := async.Batch(w.withLogger(ctx), jobs, w.config.Workers, jobTemplates, taskTimeout,
		func(ctx context.Context, job reportJob) error {
			ctx = contextkeys.WithTenantID(ctx, job.tenant)
			_, err := w.engine.GenerateReport(ctx, job.tenant, job.widget.Widget.Request(job.widget.Industry))
			if err != nil {
				return fmt.Errorf("widget %s: %w", job.widget.Widget.ID, err)
			}
			return nil
		})

	return w.finish(jobTemplates, len(jobs), errs)
}

// WarmInsights computes the all-industry insight set for every tenant
func (w *Warmer) WarmInsights(ctx context.Context) error {
	errs := async.Batch(w.withLogger(ctx), w.config.Tenants, w.config.Workers, jobInsights, taskTimeout,
		func(ctx context.Context, tenant string) error {
			ctx = contextkeys.WithTenantID(ctx, tenant)
			_, err := w.engine.GenerateInsights(ctx, tenant, "")
			return err
		})

	return w.finish(jobInsights, len(w.config.Tenants), errs)
}

// Schedule registers both warm jobs on c
func (w *Warmer) Schedule(ctx context.Context, c *cron.Cron) error {
	if _, err := c.AddFunc(w.config.TemplateSchedule, func() {
		_ = w.WarmTemplates(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule template warm: %w", err)
	}

	if _, err := c.AddFunc(w.config.InsightSchedule, func() {
		_ = w.WarmInsights(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule insight warm: %w", err)
	}

	return nil
}

func (w *Warmer) withLogger(ctx context.Context) context.Context {
	return observability.WithLogger(ctx, w.logger)
}

func (w *Warmer) finish(job string, total int, errs []error) error {
	logger := w.logger.WithFields(logrus.Fields{
		"job":    job,
		"tasks":  total,
		"failed": len(errs),
	})
	for _, err := range errs {
		logger.WithError(err).Warn("Warm task failed")
	}

	if len(errs) > 0 {
		w.metrics.RecordJobRun(job, "partial")
		logger.Warn("Warm run finished with failures")
		return fmt.Errorf("%s: %d of %d tasks failed", job, len(errs), total)
	}

	w.metrics.RecordJobRun(job, "success")
	logger.Info("Warm run finished")
	return nil
}
