package kerberos

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittoauth/internal/logger"
)

// DefaultKeytabPollInterval is used when a KeytabManager is given no interval.
const DefaultKeytabPollInterval = 60 * time.Second

// keytabReloader is the part of Provider a KeytabManager drives.
type keytabReloader interface {
	ReloadKeytab() error
}

// keytabStamp identifies one version of the keytab file on disk. Size is
// compared as well as the modification time because a key rotation within
// the filesystem's timestamp granularity keeps the mtime.
type keytabStamp struct {
	modTime time.Time
	size    int64
}

func statKeytab(path string) (keytabStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return keytabStamp{}, err
	}
	return keytabStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

func (s keytabStamp) equal(o keytabStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// KeytabManager polls a keytab file and reloads the provider when the file
// changes. Polling is used instead of inotify because keytabs are usually
// replaced by rename (kadmin, k5srvutil, mounted secrets).
//
// All methods are safe for concurrent use.
type KeytabManager struct {
	path     string
	provider keytabReloader
	interval time.Duration

	mu    sync.Mutex
	stamp keytabStamp

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewKeytabManager returns a manager for path. It does nothing until Start.
func NewKeytabManager(path string, provider keytabReloader, interval time.Duration) *KeytabManager {
	if interval <= 0 {
		interval = DefaultKeytabPollInterval
	}
	return &KeytabManager{
		path:     path,
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start stamps the current file and begins polling.
func (km *KeytabManager) Start() error {
	stamp, err := statKeytab(km.path)
	if err != nil {
		return fmt.Errorf("keytab file not accessible: %w", err)
	}

	km.mu.Lock()
	km.stamp = stamp
	km.mu.Unlock()

	km.wg.Add(1)
	go km.pollLoop()

	logger.Info("Keytab hot-reload started",
		logger.KeyKeytab, km.path,
		"poll_interval", km.interval.String())
	return nil
}

// Stop ends polling and waits for an in-flight reload to finish. It may be
// called more than once, and on a manager that never started.
func (km *KeytabManager) Stop() {
	km.stopOnce.Do(func() { close(km.stopCh) })
	km.wg.Wait()
}

func (km *KeytabManager) pollLoop() {
	defer km.wg.Done()

	ticker := time.NewTicker(km.interval)
	defer ticker.Stop()

	for {
		select {
		case <-km.stopCh:
			return
		case <-ticker.C:
			km.checkAndReload()
		}
	}
}

// checkAndReload reloads the provider if the file changed since the last
// successful load and reports whether it did. A failed reload keeps the old
// stamp so the next tick retries.
func (km *KeytabManager) checkAndReload() bool {
	km.mu.Lock()
	defer km.mu.Unlock()

	stamp, err := statKeytab(km.path)
	if err != nil {
		logger.Error("Keytab file stat failed", logger.KeyKeytab, km.path, logger.Err(err))
		return false
	}
	if stamp.equal(km.stamp) {
		return false
	}

	if err := km.provider.ReloadKeytab(); err != nil {
		logger.Error("Keytab reload failed", logger.KeyKeytab, km.path, logger.Err(err))
		return false
	}

	km.stamp = stamp
	logger.Info("Keytab reloaded", logger.KeyKeytab, km.path, "size", stamp.size)
	return true
}
