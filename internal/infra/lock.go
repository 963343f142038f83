package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
)

const lockFileName = "sitemon.pid"

// ErrAlreadyRunning is returned when another daemon holds the data directory.
var ErrAlreadyRunning = errors.New("sitemon is already running")

// InstanceLock guards a data directory against a second daemon.
type InstanceLock struct {
	lock lockfile.Lockfile
}

// AcquireInstanceLock takes the pid lock in dataDir.
func AcquireInstanceLock(dataDir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	abs, err := filepath.Abs(filepath.Join(dataDir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock path: %w", err)
	}

	lock, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return &InstanceLock{lock: lock}, nil
}

// LockedPID returns the pid recorded in dataDir's lock file, if any.
func LockedPID(dataDir string) (int, error) {
	abs, err := filepath.Abs(filepath.Join(dataDir, lockFileName))
	if err != nil {
		return 0, err
	}
	lock, err := lockfile.New(abs)
	if err != nil {
		return 0, err
	}
	p, err := lock.GetOwner()
	if err != nil {
		return 0, err
	}
	return p.Pid, nil
}

// Release removes the lock file.
func (l *InstanceLock) Release() error {
	return l.lock.Unlock()
}
