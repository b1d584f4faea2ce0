package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(cfg *Config)

// Watcher reloads a configuration file when it changes on disk and hands the
// new snapshot to registered callbacks. Invalid files are logged and ignored;
// the previous configuration stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration

	mu        sync.Mutex
	callbacks []ReloadFunc
	current   *Config
}

// NewWatcher creates a watcher for path, starting from the already loaded cfg.
func NewWatcher(path string, cfg *Config) *Watcher {
	return &Watcher{
		path:     path,
		debounce: 250 * time.Millisecond,
		current:  cfg,
	}
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run watches the file's directory until ctx is cancelled. The directory is
// watched rather than the file so editors that replace the file by rename are
// still observed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger.Info("Watching configuration for changes", logger.KeyPath, absPath)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors emit bursts of events for one save
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Configuration watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error("Configuration reload rejected, keeping previous configuration",
			logger.KeyPath, w.path, logger.Err(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	w.mu.Unlock()

	logger.Info("Configuration reloaded", logger.KeyPath, w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
