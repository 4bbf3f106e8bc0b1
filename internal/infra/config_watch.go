package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounceDefault = 200 * time.Millisecond

// Reloadable is a store that can re-read its backing file.
type Reloadable interface {
	Path() string
	Reload() error
}

// ConfigWatcher reloads the config store when the CLI rewrites the file.
// It watches the parent directory because saves replace the file by rename.
type ConfigWatcher struct {
	store    Reloadable
	debounce time.Duration
	logger   *zap.Logger
}

// NewConfigWatcher creates a watcher for store's file.
func NewConfigWatcher(store Reloadable, debounce time.Duration, logger *zap.Logger) *ConfigWatcher {
	if debounce <= 0 {
		debounce = reloadDebounceDefault
	}
	return &ConfigWatcher{store: store, debounce: debounce, logger: logger}
}

// Run watches until ctx is cancelled. If the watch cannot be set up it
// logs the error and returns nil; callers still reload on their own ticks.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := w.watch()
	if err != nil {
		w.logger.Warn("config hot reload disabled", zap.Error(err))
		return nil
	}
	defer func() { _ = watcher.Close() }()
	name := filepath.Base(w.store.Path())

	// Writes made before the watch was registered produce no event.
	w.reload()

	// Single debounce timer, reset on each event.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	return watcher, nil
}

func (w *ConfigWatcher) reload() {
	if err := w.store.Reload(); err != nil {
		// Torn or foreign write: keep the previous snapshot until the next event.
		w.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	w.logger.Debug("config reloaded", zap.String("path", w.store.Path()))
}
