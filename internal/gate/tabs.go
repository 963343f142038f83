package gate

import (
	"context"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// TabBoard tracks the last known URL of each tab and queues redirects for the
// host to apply. The host drains the queue by polling.
type TabBoard struct {
	mu    sync.Mutex
	tabs  map[int]string
	queue []domain.TabCommand
}

// NewTabBoard creates an empty board.
func NewTabBoard() *TabBoard {
	return &TabBoard{tabs: make(map[int]string)}
}

// Track records url as the current location of tabID.
func (b *TabBoard) Track(tabID int, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[tabID] = url
}

// Forget drops a closed tab and any command still queued for it.
func (b *TabBoard) Forget(tabID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tabs, tabID)

	kept := b.queue[:0]
	for _, c := range b.queue {
		if c.TabID != tabID {
			kept = append(kept, c)
		}
	}
	b.queue = kept
}

// Drain returns and clears the queued commands, oldest first.
func (b *TabBoard) Drain() []domain.TabCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.TabCommand, len(b.queue))
	copy(out, b.queue)
	b.queue = nil
	return out
}

// OpenTabs returns the tracked tabs ordered by id.
func (b *TabBoard) OpenTabs(ctx context.Context) ([]domain.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tabs := make([]domain.Tab, 0, len(b.tabs))
	for id, url := range b.tabs {
		tabs = append(tabs, domain.Tab{ID: id, URL: url})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs, nil
}

// Redirect queues a command moving tabID to url. A command already queued for
// the tab is replaced.
func (b *TabBoard) Redirect(ctx context.Context, tabID int, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[tabID] = url
	for i, c := range b.queue {
		if c.TabID == tabID {
			b.queue[i].URL = url
			return nil
		}
	}
	b.queue = append(b.queue, domain.TabCommand{TabID: tabID, URL: url})
	return nil
}

// Ensure TabBoard implements domain.TabController.
var _ domain.TabController = (*TabBoard)(nil)
