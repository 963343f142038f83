// Package daemon wires the site monitor together and runs it until canceled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/api"
	"github.com/eliteGoblin/focusd/site_mon/internal/attempts"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/gate"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
	"github.com/eliteGoblin/focusd/site_mon/internal/ledger"
	"github.com/eliteGoblin/focusd/site_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

// Config holds daemon configuration.
type Config struct {
	ListenAddr        string
	DataDir           string
	Version           string
	Ephemeral         bool          // keep state in memory; nothing is written to DataDir
	Gate              gate.Config
	PendingGCInterval time.Duration // how often stale redirect hops are dropped
	ResyncInterval    time.Duration // how often expiry timers are re-armed from storage
	ExpiryTimeout     time.Duration // timeout for one expiry sweep
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:7769",
		Gate:              gate.DefaultConfig(),
		PendingGCInterval: 10 * time.Second,
		ResyncInterval:    5 * time.Minute,
		ExpiryTimeout:     10 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Daemon owns the store, the timer service and the HTTP server.
type Daemon struct {
	config Config
	logger *zap.Logger

	ready chan struct{}
	mu    sync.Mutex
	addr  string
}

// New creates a daemon.
func New(config Config, logger *zap.Logger) *Daemon {
	return &Daemon{
		config: config,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the HTTP listener is bound.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound listen address, valid after Ready.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Run starts the daemon and blocks until ctx is canceled or the server fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.config.Ephemeral {
		lock, err := infra.AcquireInstanceLock(d.config.DataDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				d.logger.Warn("failed to release instance lock", zap.Error(err))
			}
		}()
	}

	store, err := d.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	state := storage.NewState(store)
	wrote, err := state.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to write defaults: %w", err)
	}
	if wrote {
		d.logger.Info("first run, defaults installed")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	clock := domain.RealClock{}
	scheduler := infra.NewCronScheduler(d.logger)
	l := ledger.New(state)
	engine := policy.NewEngine(state, l, scheduler, clock, d.logger, m)
	g := gate.New(d.config.Gate, engine, gate.NewTabBoard(), clock, d.logger, m)
	svc := usecase.NewService(state, engine, l, attempts.NewCounter(state), clock, d.logger, m)

	scheduler.OnFire(func(name string) {
		fireCtx, cancel := context.WithTimeout(context.Background(), d.config.ExpiryTimeout)
		defer cancel()
		if err := g.HandleExpiry(fireCtx, name); err != nil {
			d.logger.Warn("expiry sweep failed", zap.String("timer", name), zap.Error(err))
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	d.rearmTimers(ctx, engine, scheduler)

	ln, err := net.Listen("tcp", d.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           api.NewServer(api.Config{Version: d.config.Version}, svc, g, reg, d.logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()
	close(d.ready)

	d.logger.Info("daemon started",
		zap.String("addr", d.Addr()),
		zap.String("data_dir", d.config.DataDir),
		zap.Bool("ephemeral", d.config.Ephemeral),
		zap.String("version", d.config.Version))

	gcTicker := time.NewTicker(d.config.PendingGCInterval)
	resyncTicker := time.NewTicker(d.config.ResyncInterval)
	defer func() {
		gcTicker.Stop()
		resyncTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return d.shutdown(srv)

		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("http server failed: %w", err)

		case <-gcTicker.C:
			g.EvictPending()

		case <-resyncTicker.C:
			d.rearmTimers(ctx, engine, scheduler)
		}
	}
}

func (d *Daemon) openStore(ctx context.Context) (domain.KVStore, error) {
	if d.config.Ephemeral {
		d.logger.Warn("running with in-memory state, nothing will be saved")
		return storage.NewMemoryStore(), nil
	}
	store, err := infra.OpenEncryptedStore(ctx, d.config.DataDir, infra.NewFileKeyProvider(d.config.DataDir), d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return store, nil
}

// rearmTimers schedules an expiry callback for every open session. Timers do
// not survive a restart, so this runs at startup and periodically after.
func (d *Daemon) rearmTimers(ctx context.Context, engine *policy.Engine, scheduler domain.Scheduler) {
	expiries, err := engine.ActiveExpiries(ctx, time.Now())
	if err != nil {
		d.logger.Warn("failed to load open sessions", zap.Error(err))
		return
	}
	for dom, at := range expiries {
		if err := scheduler.ScheduleAt(policy.ExpiryTimerName(dom), at); err != nil {
			d.logger.Warn("failed to re-arm expiry",
				zap.String("domain", dom),
				zap.Error(err))
		}
	}
	if len(expiries) > 0 {
		d.logger.Debug("expiry timers re-armed", zap.Int("count", len(expiries)))
	}
}

func (d *Daemon) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
