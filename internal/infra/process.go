// Package infra implements infrastructure concerns (storage, timers, logging, processes).
package infra

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// ProcessInspectorImpl implements domain.ProcessInspector using gopsutil.
type ProcessInspectorImpl struct{}

// NewProcessInspector creates a new process inspector.
func NewProcessInspector() domain.ProcessInspector {
	return &ProcessInspectorImpl{}
}

// IsRunning checks if a PID exists and is running.
func (pi *ProcessInspectorImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// StartedAt returns the creation time of the process.
func (pi *ProcessInspectorImpl) StartedAt(pid int) (time.Time, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, err
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// MemoryRSS returns the resident set size in bytes.
func (pi *ProcessInspectorImpl) MemoryRSS(pid int) (uint64, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}

// Ensure ProcessInspectorImpl implements domain.ProcessInspector.
var _ domain.ProcessInspector = (*ProcessInspectorImpl)(nil)
