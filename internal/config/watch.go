package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

// Watch reloads path whenever it is written and passes each valid Config to
// onChange. A file that fails to load or validate is logged and skipped, so
// the previous config stays active. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temp file over the original are picked up.
func Watch(ctx context.Context, path string, onChange func(*Config) error) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatchConfig, err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatchConfig, path, err)
	}

	log := logger.Get().Named("config")
	log.Info(ctx, "watching for changes", logger.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFrom(ctx, path)
			if err != nil {
				metrics.RecordConfigReload("invalid")
				log.Error(ctx, "reload failed, keeping previous config", logger.String("path", path), logger.Error(err))
				continue
			}
			if err := onChange(cfg); err != nil {
				metrics.RecordConfigReload("rejected")
				log.Error(ctx, "reloaded config rejected", logger.String("path", path), logger.Error(err))
				continue
			}
			metrics.RecordConfigReload("ok")
			log.Info(ctx, "config reloaded", logger.String("path", path))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "watcher error", logger.Error(err))
		}
	}
}
