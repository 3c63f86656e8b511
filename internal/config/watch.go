package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/codefionn/huddle/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the file at path is written or
// replaced and passes the result to onChange. The parent directory is watched
// so editors that save through rename are picked up. Watch blocks until ctx
// is done. Files that fail to load are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				logger.Warn("Ignoring config change: %v", err)
				continue
			}
			logger.Info("Config reloaded from %s", abs)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error: %v", err)
		}
	}
}
