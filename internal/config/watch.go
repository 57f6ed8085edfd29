package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/gridedge/pkg/logger"
)

// Watch reloads the YAML file at path whenever it is written or replaced and
// passes every successfully loaded Config to onChange. The directory is
// watched rather than the file so that editors replacing the file by rename
// are still observed. Watch returns once the watcher is running; it stops
// when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("%w: watch path must not be empty", ErrInvalidConfig)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	log := logger.Named("config")
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadFile(ctx, abs)
				if err != nil {
					log.Warn(ctx, "config reload rejected", logger.String("path", abs), logger.Error(err))
					continue
				}
				log.Info(ctx, "config reloaded", logger.String("path", abs))
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error(ctx, "config watcher error", logger.Error(err))
			}
		}
	}()
	return nil
}
