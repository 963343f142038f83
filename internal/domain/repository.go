package domain

import (
	"context"
	"time"
)

// KVStore is the persistent key-value store.
// Values are replaced whole; callers must read-modify-write.
type KVStore interface {
	// Get returns the stored values for keys. Missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)

	// Set stores all values in one write.
	Set(ctx context.Context, values map[string][]byte) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// Scheduler delivers a named callback at or after an instant.
// Re-scheduling a name replaces the prior schedule.
type Scheduler interface {
	ScheduleAt(name string, at time.Time) error
}

// TabController gives the gate access to open tabs.
type TabController interface {
	// OpenTabs returns the last known URL of every open tab.
	OpenTabs(ctx context.Context) ([]Tab, error)

	// Redirect moves a tab to url.
	Redirect(ctx context.Context, tabID int, url string) error
}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// ProcessInspector answers questions about OS processes.
// Implementation: uses gopsutil for cross-platform support.
type ProcessInspector interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// StartedAt returns when the process was created.
	StartedAt(pid int) (time.Time, error)

	// MemoryRSS returns the resident set size in bytes.
	MemoryRSS(pid int) (uint64, error)
}
