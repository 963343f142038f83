// Package main is the CLI entry point for sitemon.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/client"
	"github.com/eliteGoblin/focusd/site_mon/internal/config"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const requestTimeout = 10 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitemon",
	Short: "Site monitor - makes you justify every visit to a distracting site",
	Long: `sitemon keeps a list of distracting sites. Visiting one sends you to a page
that asks why you need it and for how long. Sessions are short, every one is
logged, and after each session the site stays locked for a cooldown period.

The daemon runs in the background and answers the browser extension and this CLI.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	daemonURL  string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: per-user config location)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "", "Daemon base URL (default: from listen_addr)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newClient returns a client for the configured daemon.
func newClient() (*client.Client, error) {
	if daemonURL != "" {
		return client.New(daemonURL), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.BaseURL()), nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("sitemon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
