//go:build integration

package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/api"
	"github.com/eliteGoblin/focusd/site_mon/internal/attempts"
	"github.com/eliteGoblin/focusd/site_mon/internal/client"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/gate"
	"github.com/eliteGoblin/focusd/site_mon/internal/ledger"
	"github.com/eliteGoblin/focusd/site_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

const emergencyCode = "LETMEIN2"

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// manualScheduler records timers; tests fire them by hand.
type manualScheduler struct {
	mu     sync.Mutex
	timers map[string]time.Time
}

func (s *manualScheduler) ScheduleAt(name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[name] = at
	return nil
}

func (s *manualScheduler) At(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.timers[name]
	return at, ok
}

// stack is the full request path: HTTP client, API server, service, engine,
// gate and storage, with time and timers driven by the test.
type stack struct {
	client    *client.Client
	gate      *gate.Gate
	clock     *manualClock
	scheduler *manualScheduler
	server    *httptest.Server
}

func newStack() *stack {
	ctx := context.Background()
	logger := zap.NewNop()

	state := storage.NewState(storage.NewMemoryStore())
	if err := state.SaveSettings(ctx, domain.Settings{
		CooldownMinutes: 30,
		DefaultMinutes:  5,
		EmergencyCode:   emergencyCode,
	}); err != nil {
		panic(err)
	}
	if err := state.SaveRules(ctx, []domain.BlockRule{
		{Pattern: "*.facebook.com", Enabled: true},
		{Pattern: "reddit.com", Enabled: true},
		{Pattern: "youtube.com", Enabled: false},
	}); err != nil {
		panic(err)
	}

	clock := &manualClock{t: t0}
	sched := &manualScheduler{timers: make(map[string]time.Time)}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	l := ledger.NewWithDeps(state, clock, ledger.UUIDGenerator{})
	engine := policy.NewEngine(state, l, sched, clock, logger, m)
	g := gate.New(gate.DefaultConfig(), engine, gate.NewTabBoard(), clock, logger, m)
	svc := usecase.NewService(state, engine, l, attempts.NewCounterInLocation(state, time.UTC), clock, logger, m)

	srv := httptest.NewServer(api.NewServer(api.Config{Version: "integration"}, svc, g, reg, logger).Handler())
	return &stack{
		client:    client.New(srv.URL),
		gate:      g,
		clock:     clock,
		scheduler: sched,
		server:    srv,
	}
}

func (s *stack) Close() {
	s.server.Close()
}

// expire advances past the domain's expiry and fires its timer.
func (s *stack) expire(d string) error {
	name := policy.ExpiryTimerName(d)
	at, ok := s.scheduler.At(name)
	if !ok {
		return nil
	}
	if now := s.clock.Now(); at.After(now) {
		s.clock.Advance(at.Sub(now) + time.Second)
	}
	return s.gate.HandleExpiry(context.Background(), name)
}

// scrape returns the metrics exposition text.
func (s *stack) scrape() string {
	resp, err := http.Get(s.server.URL + api.PathMetrics)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}
	return string(body)
}

func topLevel(tabID int, url string) domain.NavigationEvent {
	return domain.NavigationEvent{URL: url, TabID: tabID, FrameID: 0, IsTopLevel: true}
}
