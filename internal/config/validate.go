package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", cfg.ListenAddr, err)
	}
	if port == "" {
		return fmt.Errorf("listen_addr %q has no port", cfg.ListenAddr)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("listen_addr must be a loopback address, got %q", host)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log.level: %s", cfg.Log.Level)
	}
	if cfg.Gate.RedirectDebounce <= 0 {
		return fmt.Errorf("gate.redirect_debounce must be positive")
	}
	if cfg.Gate.InterstitialBase == "" {
		return fmt.Errorf("gate.interstitial_base must be set")
	}
	if cfg.Gate.ExtensionPrefix != "" && !strings.HasPrefix(cfg.Gate.InterstitialBase, cfg.Gate.ExtensionPrefix) {
		return fmt.Errorf("gate.interstitial_base must start with gate.extension_prefix")
	}
	if cfg.Daemon.PendingGCInterval <= 0 || cfg.Daemon.ResyncInterval <= 0 {
		return fmt.Errorf("daemon intervals must be positive")
	}
	return nil
}
