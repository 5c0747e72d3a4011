package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging through the context logger
//
// Example:
//
//	SafeGo(ctx, time.Minute, "initial warm", func(ctx context.Context) error {
//	    return warmer.WarmTemplates(ctx)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		logger := observability.FromContext(parentCtx).WithField("task", taskName)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// TaskError ties a batch failure to the index of the item that produced it.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Batch processes items concurrently with at most workers goroutines. Each
// item gets its own timeout and panic recovery; a failing item never stops
// the others. Items not yet started when ctx is cancelled are reported with
// the context error. Errors are returned in item order.
//
// Example:
//
//	errs := Batch(ctx, tenants, 4, "template warm", 30*time.Second, func(ctx context.Context, tenant string) error {
//	    return warmTenant(ctx, tenant)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}
	logger := observability.FromContext(ctx).WithField("task", taskName)

	var (
		mu     sync.Mutex
		failed = make(map[int]error)
	)
	record := func(i int, err error) {
		mu.Lock()
		failed[i] = err
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			record(i, err)
			continue
		}
		g.Go(func() error {
			if err := runItem(ctx, logger, timeout, taskName, item, fn); err != nil {
				record(i, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for i := range items {
		if err, ok := failed[i]; ok {
			errs = append(errs, &TaskError{Index: i, Err: err})
		}
	}
	return errs
}

func runItem[T any](ctx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, item T,
	fn func(context.Context, T) error) (err error) {

	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer observability.RecoverPanicWithCallback(logger, taskName, func() {
		err = fmt.Errorf("%s: panic while processing item", taskName)
	})

	return fn(itemCtx, item)
}
