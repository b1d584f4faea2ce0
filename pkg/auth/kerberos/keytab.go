package kerberos

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// KeytabManager polls a keytab file and hot-reloads it into a Provider when
// its modification time changes.
//
// Polling is used instead of fsnotify because key management tools replace
// keytabs by rename, which loses inotify watches on some platforms.
type KeytabManager struct {
	path     string
	provider *Provider
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	lastMod  time.Time
}

// NewKeytabManager creates a manager that is not yet started. A non-positive
// interval selects DefaultKeytabRefresh.
func NewKeytabManager(path string, provider *Provider, interval time.Duration) *KeytabManager {
	if interval <= 0 {
		interval = DefaultKeytabRefresh
	}
	return &KeytabManager{
		path:     path,
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start records the current modification time and begins polling.
func (km *KeytabManager) Start() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	info, err := os.Stat(km.path)
	if err != nil {
		return fmt.Errorf("keytab file not accessible: %w", err)
	}
	km.lastMod = info.ModTime()

	go km.pollLoop()

	logger.Info("Keytab hot-reload started",
		logger.KeyPath, km.path,
		"poll_interval", km.interval.String(),
	)
	return nil
}

// Stop ends polling. Safe to call multiple times or before Start.
func (km *KeytabManager) Stop() {
	km.stopOnce.Do(func() { close(km.stopCh) })
}

func (km *KeytabManager) pollLoop() {
	ticker := time.NewTicker(km.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			km.checkAndReload()
		case <-km.stopCh:
			return
		}
	}
}

// checkAndReload reloads the keytab when the file changed since the last
// successful load. It reports whether a reload happened.
func (km *KeytabManager) checkAndReload() bool {
	km.mu.Lock()
	defer km.mu.Unlock()

	info, err := os.Stat(km.path)
	if err != nil {
		logger.Error("Keytab file stat failed", logger.KeyPath, km.path, logger.Err(err))
		return false
	}

	modTime := info.ModTime()
	if modTime.Equal(km.lastMod) {
		return false
	}

	if err := km.provider.ReloadKeytab(); err != nil {
		logger.Error("Keytab reload failed, keeping previous keys", logger.KeyPath, km.path, logger.Err(err))
		return false
	}

	km.lastMod = modTime
	logger.Info("Keytab reloaded", logger.KeyPath, km.path)
	return true
}
