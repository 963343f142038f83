// Package gate applies the access policy to navigation events and sweeps open
// tabs when a session expires.
package gate

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
	"github.com/eliteGoblin/focusd/site_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/redirect"
)

// Interstitial page names, relative to Config.InterstitialBase.
const (
	BlockedPage = "blocked.html"
	JustifyPage = "justify.html"
)

// Config holds gate configuration.
type Config struct {
	RedirectDebounce time.Duration // pending hops older than twice this are dropped
	ExtensionPrefix  string        // URLs with this prefix are the extension's own pages
	InterstitialBase string        // base URL of blocked.html and justify.html
}

// DefaultConfig returns default gate configuration.
func DefaultConfig() Config {
	return Config{
		RedirectDebounce: 2 * time.Second,
		ExtensionPrefix:  "chrome-extension://",
		InterstitialBase: "chrome-extension://sitemon/",
	}
}

// Evaluator is the part of the policy engine the gate needs.
type Evaluator interface {
	Evaluate(ctx context.Context, rawURL string) (domain.Decision, error)
	CheckStatus(ctx context.Context, d string) (policy.StatusReport, error)
}

// Gate decides what happens to each top-level navigation.
type Gate struct {
	config  Config
	policy  Evaluator
	tabs    domain.TabController
	board   *TabBoard
	clock   domain.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[int]domain.PendingNavigation
}

// New creates a gate that records tab locations on board and sweeps through it.
func New(config Config, p Evaluator, board *TabBoard, clock domain.Clock, logger *zap.Logger, m *metrics.Metrics) *Gate {
	return NewWithTabs(config, p, board, board, clock, logger, m)
}

// NewWithTabs creates a gate with a separate tab controller for sweeps (for testing).
func NewWithTabs(
	config Config,
	p Evaluator,
	tabs domain.TabController,
	board *TabBoard,
	clock domain.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Gate {
	return &Gate{
		config:  config,
		policy:  p,
		tabs:    tabs,
		board:   board,
		clock:   clock,
		logger:  logger,
		metrics: m,
		pending: make(map[int]domain.PendingNavigation),
	}
}

// HandleNavigation evaluates a navigation before it commits. Evaluation
// failures let the navigation through; the next navigation is checked again.
func (g *Gate) HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.Verdict, error) {
	proceed := domain.Verdict{Action: domain.ActionProceed}

	if !ev.TopLevel() {
		g.metrics.Navigation("ignored")
		return proceed, nil
	}
	g.board.Track(ev.TabID, ev.URL)

	if g.isExtensionPage(ev.URL) {
		g.metrics.Navigation("ignored")
		return proceed, nil
	}

	now := g.clock.Now()
	if redirect.IsRedirectPage(ev.URL) {
		g.mu.Lock()
		g.pending[ev.TabID] = domain.PendingNavigation{RedirectURL: ev.URL, Timestamp: now}
		n := len(g.pending)
		g.mu.Unlock()

		g.metrics.SetPending(n)
		g.metrics.Navigation("redirect-hop")
		g.logger.Debug("redirect page, waiting for destination",
			zap.Int("tab", ev.TabID),
			zap.String("url", ev.URL))
		return proceed, nil
	}

	g.EvictPending()
	g.mu.Lock()
	hop, ok := g.pending[ev.TabID]
	delete(g.pending, ev.TabID)
	n := len(g.pending)
	g.mu.Unlock()
	g.metrics.SetPending(n)
	if ok {
		g.logger.Debug("redirect completed",
			zap.Int("tab", ev.TabID),
			zap.String("from", hop.RedirectURL),
			zap.String("to", ev.URL))
	}

	decision, err := g.policy.Evaluate(ctx, ev.URL)
	if err != nil {
		return proceed, fmt.Errorf("failed to evaluate navigation: %w", err)
	}
	if !decision.Blocked {
		g.metrics.Navigation("allow")
		return proceed, nil
	}

	target := g.InterstitialURL(decision.Reason, ev.URL)
	g.board.Track(ev.TabID, target)
	g.metrics.Navigation(string(decision.Reason))
	g.logger.Info("navigation blocked",
		zap.String("domain", decision.Domain),
		zap.String("reason", string(decision.Reason)),
		zap.Int("tab", ev.TabID))
	return domain.Verdict{Action: domain.ActionRedirect, RedirectURL: target}, nil
}

// HandleExpiry is the expiry timer callback. Timers with other names are
// ignored. The permission is reloaded first, so a callback for a session that
// was renewed in the meantime does nothing.
func (g *Gate) HandleExpiry(ctx context.Context, timerName string) error {
	d, ok := policy.DomainFromTimer(timerName)
	if !ok {
		return nil
	}

	status, err := g.policy.CheckStatus(ctx, d)
	if err != nil {
		g.metrics.Sweep("error")
		return fmt.Errorf("failed to reload permission for %s: %w", d, err)
	}
	if status.Status == domain.StatusActive {
		g.metrics.Sweep("superseded")
		g.logger.Debug("expiry superseded by newer grant", zap.String("domain", d))
		return nil
	}

	tabs, err := g.tabs.OpenTabs(ctx)
	if err != nil {
		g.metrics.Sweep("error")
		return fmt.Errorf("failed to list tabs: %w", err)
	}

	redirected := 0
	for _, tab := range tabs {
		if tab.URL == "" || g.isExtensionPage(tab.URL) || !matcher.Matches(tab.URL, d) {
			continue
		}
		decision, err := g.policy.Evaluate(ctx, tab.URL)
		if err != nil {
			g.logger.Warn("failed to evaluate tab during sweep",
				zap.Int("tab", tab.ID),
				zap.Error(err))
			continue
		}
		if !decision.Blocked {
			continue
		}
		if err := g.tabs.Redirect(ctx, tab.ID, g.InterstitialURL(decision.Reason, tab.URL)); err != nil {
			g.logger.Warn("failed to redirect tab",
				zap.Int("tab", tab.ID),
				zap.Error(err))
			continue
		}
		redirected++
	}

	g.metrics.Sweep("redirected")
	g.logger.Info("permission expired",
		zap.String("domain", d),
		zap.Int("tabs_redirected", redirected))
	return nil
}

// EvictPending drops pending hops older than twice the debounce window and
// returns how many remain.
func (g *Gate) EvictPending() int {
	cutoff := g.clock.Now().Add(-2 * g.config.RedirectDebounce)

	g.mu.Lock()
	for tab, p := range g.pending {
		if p.Timestamp.Before(cutoff) {
			delete(g.pending, tab)
		}
	}
	n := len(g.pending)
	g.mu.Unlock()

	g.metrics.SetPending(n)
	return n
}

// TabClosed forgets everything known about a closed tab.
func (g *Gate) TabClosed(tabID int) {
	g.board.Forget(tabID)

	g.mu.Lock()
	delete(g.pending, tabID)
	n := len(g.pending)
	g.mu.Unlock()
	g.metrics.SetPending(n)
}

// DrainCommands hands queued sweep redirects to the host.
func (g *Gate) DrainCommands() []domain.TabCommand {
	return g.board.Drain()
}

// PendingCount returns the number of pending hops.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// InterstitialURL builds the page a blocked navigation is sent to.
func (g *Gate) InterstitialURL(reason domain.BlockReason, original string) string {
	page := JustifyPage
	if reason == domain.ReasonCooldown {
		page = BlockedPage
	}
	return g.config.InterstitialBase + page + "?url=" + url.QueryEscape(original)
}

func (g *Gate) isExtensionPage(rawURL string) bool {
	return g.config.ExtensionPrefix != "" && strings.HasPrefix(rawURL, g.config.ExtensionPrefix)
}
