// Package confwatch re-loads a config file whenever it changes on disk.
package confwatch

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
)

// Watch monitors path and calls onChange with the result of load each time
// the file is written. It runs until ctx is cancelled.
//
// If load fails (e.g., invalid YAML), the error is logged and the previous
// config remains active; onChange is not called.
func Watch[T any](ctx context.Context, path string, load func(string) (T, error), log *zap.Logger, onChange func(T)) error {
	log = logging.OrNop(log)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Info("config: watching for changes", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := load(path)
			if err != nil {
				log.Error("config: reload failed, keeping previous config",
					zap.String("path", path), zap.Error(err))
				continue
			}

			log.Info("config: reloaded", zap.String("path", path))
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config: watcher error", zap.Error(err))
		}
	}
}
