package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// TemplateReloader is implemented by *analytics.Engine
type TemplateReloader interface {
	ReloadTemplates(path string) error
}

// WatchTemplates reloads the dashboard templates file whenever it changes,
// until ctx is done. The parent directory is watched so editors and config
// mounts that replace the file are seen. A file that fails to load is
// logged and the previous templates keep serving.
func WatchTemplates(ctx context.Context, reloader TemplateReloader, path string, logger logrus.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	logger = logger.WithField("path", path)
	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(logger, "template watcher")

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := reloader.ReloadTemplates(path); err != nil {
					logger.WithError(err).Error("Failed to reload dashboard templates, keeping previous set")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Template watcher error")
			}
		}
	}()

	return nil
}
