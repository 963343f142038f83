// Package ledger keeps the append-only history of granted sessions.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
)

// Retention bounds, applied on every append.
const (
	MaxEntries = 1000
	MaxAge     = 90 * 24 * time.Hour
)

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Ledger owns the usageLogs key.
type Ledger struct {
	state *storage.State
	clock domain.Clock
	ids   domain.IDGenerator
}

// New creates a ledger with a real clock and UUID ids.
func New(state *storage.State) *Ledger {
	return NewWithDeps(state, domain.RealClock{}, UUIDGenerator{})
}

// NewWithDeps creates a ledger with injected clock and id generator (for testing).
func NewWithDeps(state *storage.State, clock domain.Clock, ids domain.IDGenerator) *Ledger {
	return &Ledger{state: state, clock: clock, ids: ids}
}

// Append adds entry and prunes the ledger. An empty ID is filled in.
func (l *Ledger) Append(ctx context.Context, entry domain.UsageLogEntry) (domain.UsageLogEntry, error) {
	if entry.ID == "" {
		entry.ID = l.ids.New()
	}
	now := l.clock.Now()
	err := l.state.UpdateUsageLogs(ctx, func(logs []domain.UsageLogEntry) ([]domain.UsageLogEntry, error) {
		return Prune(append(logs, entry), now), nil
	})
	if err != nil {
		return domain.UsageLogEntry{}, err
	}
	return entry, nil
}

// Prune drops entries granted more than MaxAge before now, then keeps the
// last MaxEntries by insertion order.
func Prune(logs []domain.UsageLogEntry, now time.Time) []domain.UsageLogEntry {
	cutoff := now.Add(-MaxAge)
	kept := make([]domain.UsageLogEntry, 0, len(logs))
	for _, e := range logs {
		if e.GrantedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > MaxEntries {
		kept = kept[len(kept)-MaxEntries:]
	}
	return kept
}

// List returns entries newest first. A limit <= 0 returns everything.
func (l *Ledger) List(ctx context.Context, limit int) ([]domain.UsageLogEntry, error) {
	logs, err := l.state.UsageLogs(ctx)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(logs)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	if logs == nil {
		logs = []domain.UsageLogEntry{}
	}
	return logs, nil
}

// SortNewestFirst orders entries by GrantedAt descending, keeping insertion
// order for equal timestamps.
func SortNewestFirst(logs []domain.UsageLogEntry) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].GrantedAt.After(logs[j].GrantedAt)
	})
}
