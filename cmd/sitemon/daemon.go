package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/client"
	"github.com/eliteGoblin/focusd/site_mon/internal/config"
	"github.com/eliteGoblin/focusd/site_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/site_mon/internal/humanize"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

const startWait = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long: `Starts the daemon as a detached background process and waits until it answers.
If a daemon is already answering at the configured address, nothing happens.`,
	RunE: runStart,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	Long: `Runs the daemon in the foreground until interrupted. This is what 'start'
launches, and what a service manager (systemd, launchd) should run.`,
	RunE: runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	RunE:  runStatus,
}

var ephemeral bool

func init() {
	serveCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep state in memory only (nothing is saved)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := client.New(cfg.BaseURL())

	ctx, cancel := requestContext(cmd)
	defer cancel()
	if h, err := c.Health(ctx); err == nil {
		fmt.Printf("sitemon is already running (pid %d, version %s)\n", h.PID, h.Version)
		return nil
	}

	pid, err := daemon.StartDaemon(configPath)
	if err != nil {
		return err
	}

	if err := waitHealthy(cmd.Context(), c, startWait); err != nil {
		return fmt.Errorf("daemon (pid %d) did not come up, see %s: %w", pid, cfg.Log.Path, err)
	}

	fmt.Println("\n=== sitemon Started ===")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Listening: %s\n", cfg.ListenAddr)
	fmt.Printf("Data: %s\n", cfg.DataDir)
	fmt.Printf("Log: %s\n", cfg.Log.Path)
	fmt.Println("=======================")
	return nil
}

func waitHealthy(ctx context.Context, c *client.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := c.Health(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := infra.NewLogger(cfg.LogSettings())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(daemonConfig(cfg, ephemeral), logger)
	if err := d.Run(ctx); err != nil {
		if errors.Is(err, infra.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "sitemon is already running for this data directory")
		}
		logger.Error("daemon exited", zap.Error(err))
		return err
	}
	return nil
}

func daemonConfig(cfg *config.Config, ephemeral bool) daemon.Config {
	dc := daemon.DefaultConfig()
	dc.ListenAddr = cfg.ListenAddr
	dc.DataDir = cfg.DataDir
	dc.Version = Version
	dc.Ephemeral = ephemeral
	dc.Gate = cfg.GateSettings()
	dc.PendingGCInterval = cfg.Daemon.PendingGCInterval
	dc.ResyncInterval = cfg.Daemon.ResyncInterval
	return dc
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	inspector := infra.NewProcessInspector()

	fmt.Println("\n=== sitemon Status ===")

	pid, err := infra.LockedPID(cfg.DataDir)
	if err != nil || !inspector.IsRunning(pid) {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'sitemon start' to enable blocking.")
		return nil
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	h, healthErr := client.New(cfg.BaseURL()).Health(ctx)
	if healthErr != nil {
		fmt.Println("Status: DEGRADED (process alive, API not answering)")
	} else {
		fmt.Println("Status: RUNNING")
		fmt.Printf("Version: %s\n", h.Version)
	}

	fmt.Printf("PID: %d\n", pid)
	if started, err := inspector.StartedAt(pid); err == nil {
		fmt.Printf("Up since: %s (%s)\n", started.Format(time.RFC3339), humanize.Ago(started, time.Now()))
	}
	if rss, err := inspector.MemoryRSS(pid); err == nil {
		fmt.Printf("Memory: %.1f MB\n", float64(rss)/(1024*1024))
	}
	fmt.Printf("Listening: %s\n", cfg.ListenAddr)
	fmt.Printf("Data: %s\n", cfg.DataDir)
	fmt.Println("======================")
	return nil
}
