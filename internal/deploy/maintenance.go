package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const maintenanceLockName = "maintenance.lock"

// MaintenanceLock serialises bootstrap and cleanup runs across processes
// sharing a data directory, e.g. a CLI cleanup while the server is up.
type MaintenanceLock struct {
	path  string
	retry time.Duration
}

// NewMaintenanceLock creates the lock for dataDir. retry is the polling
// interval while waiting; zero means 50ms.
func NewMaintenanceLock(dataDir string, retry time.Duration) *MaintenanceLock {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &MaintenanceLock{path: filepath.Join(dataDir, maintenanceLockName), retry: retry}
}

// Path returns the lock file location.
func (m *MaintenanceLock) Path() string { return m.path }

// Acquire blocks until the lock is held or ctx is done. Call the returned
// function to release it.
func (m *MaintenanceLock) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(m.path)
	locked, err := fl.TryLockContext(ctx, m.retry)
	if err != nil {
		return nil, fmt.Errorf("maintenance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("maintenance lock: not acquired")
	}
	return func() { fl.Unlock() }, nil
}

// Run executes fn while holding the lock.
func (m *MaintenanceLock) Run(ctx context.Context, fn func(context.Context) error) error {
	release, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
