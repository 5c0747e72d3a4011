// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// timeout enforcement, context cancellation and structured error logging.
//
// # Key Functions
//
// SafeGo: Execute a function in a goroutine with safety features
//
//	async.SafeGo(ctx, time.Minute, "initial warm", func(ctx context.Context) error {
//		return warmer.WarmTemplates(ctx)
//	})
//
// Batch: Bounded concurrent processing with per-item timeouts
//
//	errs := async.Batch(ctx, jobs, 4, "template warm", 30*time.Second, func(ctx context.Context, job warmJob) error {
//		_, err := engine.GenerateReport(ctx, job.tenant, job.request)
//		return err
//	})
//
// Batch never stops on a failing item. Failures come back as *TaskError
// values in item order.
//
// # Related Packages
//
//   - cmd/analytics-warmer: Uses Batch to precompute dashboard reports
//   - pkg/observability: Context logger and panic recovery
package async
