package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildwatch/buildwatch/internal/logging"
)

var logger = logging.New("config")

// reloadDelay coalesces the burst of events a single editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch calls onChange with the reloaded Config whenever the file at path
// changes, until ctx is cancelled. A file that fails to load or validate is
// logged and skipped; the caller keeps its previous Config.
//
// The parent directory is watched rather than the file itself so that saves
// which replace the file (rename over, delete and recreate) keep being seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching for changes", "path", abs)

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				logger.Error("reload failed, keeping previous config", "path", abs, "err", err)
				continue
			}
			logger.Info("reloaded", "path", abs, "ecosystems", len(cfg.Ecosystems))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)
		}
	}
}
