package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit for one save.
const reloadDebounce = 250 * time.Millisecond

// Watch calls reload whenever the file at path changes, until ctx is done.
// The parent directory is watched so that atomic replace-by-rename, as done
// by editors and ConfigMap updates, is seen.
func Watch(ctx context.Context, path string, reload func(context.Context) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				if err := reload(ctx); err != nil {
					logger.Error("config reload failed; keeping previous runtime",
						slog.String("path", abs),
						slog.String("error", err.Error()),
					)
					continue
				}
				logger.Info("config reloaded", slog.String("path", abs))

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
