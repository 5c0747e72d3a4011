package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic logs a panic in a background task and lets the goroutine
// return normally. Call it directly in a defer.
func RecoverPanic(logger logrus.FieldLogger, task string) {
	if r := recover(); r != nil {
		logPanic(logger, task, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic plus onPanic, which runs only
// when a panic was recovered. HTTP handlers use it to write a 500.
func RecoverPanicWithCallback(logger logrus.FieldLogger, task string, onPanic func()) {
	if r := recover(); r != nil {
		logPanic(logger, task, r)
		if onPanic != nil {
			onPanic()
		}
	}
}

// MustRecover turns a recovered value into an error, nil when r is nil.
// A recovered error is wrapped so errors.Is still matches it.
func MustRecover(r interface{}) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		return fmt.Errorf("panic: %w", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

func logPanic(logger logrus.FieldLogger, task string, r interface{}) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"panic": r,
		"stack": string(debug.Stack()),
		"task":  task,
	}).Error("Recovered panic")
}
