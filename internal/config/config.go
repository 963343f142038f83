// Package config loads daemon configuration from an optional YAML file and
// SITEMON_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/eliteGoblin/focusd/site_mon/internal/gate"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

const (
	// DefaultListenAddr is loopback only; the API has no authentication.
	DefaultListenAddr = "127.0.0.1:7769"
	envPrefix         = "SITEMON_"
)

// Config is the daemon configuration.
type Config struct {
	ListenAddr string       `yaml:"listen_addr" env:"SITEMON_LISTEN_ADDR"`
	DataDir    string       `yaml:"data_dir" env:"SITEMON_DATA_DIR"`
	Log        LogConfig    `yaml:"log"`
	Gate       GateConfig   `yaml:"gate"`
	Daemon     DaemonConfig `yaml:"daemon"`
}

type LogConfig struct {
	Path       string `yaml:"path" env:"SITEMON_LOG_PATH"`
	Level      string `yaml:"level" env:"SITEMON_LOG_LEVEL"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"SITEMON_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"SITEMON_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"SITEMON_LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"SITEMON_LOG_COMPRESS"`
}

type GateConfig struct {
	RedirectDebounce time.Duration `yaml:"redirect_debounce" env:"SITEMON_GATE_REDIRECT_DEBOUNCE"`
	ExtensionPrefix  string        `yaml:"extension_prefix" env:"SITEMON_GATE_EXTENSION_PREFIX"`
	InterstitialBase string        `yaml:"interstitial_base" env:"SITEMON_GATE_INTERSTITIAL_BASE"`
}

type DaemonConfig struct {
	PendingGCInterval time.Duration `yaml:"pending_gc_interval" env:"SITEMON_DAEMON_PENDING_GC_INTERVAL"`
	ResyncInterval    time.Duration `yaml:"resync_interval" env:"SITEMON_DAEMON_RESYNC_INTERVAL"`
}

// Default returns the configuration used when nothing is overridden.
func Default(paths *infra.ExecModeConfig) *Config {
	g := gate.DefaultConfig()
	return &Config{
		ListenAddr: DefaultListenAddr,
		DataDir:    paths.DataDir,
		Log: LogConfig{
			Path:       paths.LogPath,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Gate: GateConfig{
			RedirectDebounce: g.RedirectDebounce,
			ExtensionPrefix:  g.ExtensionPrefix,
			InterstitialBase: g.InterstitialBase,
		},
		Daemon: DaemonConfig{
			PendingGCInterval: 10 * time.Second,
			ResyncInterval:    5 * time.Minute,
		},
	}
}

// Load reads path (if it exists) over the defaults, then the environment.
// An empty path falls back to SITEMON_CONFIG and then the mode's default
// location.
func Load(path string) (*Config, error) {
	paths := infra.DetectExecMode()
	return load(path, paths)
}

func load(path string, paths *infra.ExecModeConfig) (*Config, error) {
	cfg := Default(paths)

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = paths.ConfigPath
	}

	st, err := os.Stat(path)
	switch {
	case err == nil && !st.IsDir():
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("config file %s not found", path)
	default:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Log.Path = strings.TrimSpace(cfg.Log.Path)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Gate.ExtensionPrefix = strings.TrimSpace(cfg.Gate.ExtensionPrefix)
	cfg.Gate.InterstitialBase = strings.TrimSpace(cfg.Gate.InterstitialBase)
	if cfg.Gate.InterstitialBase != "" && !strings.HasSuffix(cfg.Gate.InterstitialBase, "/") {
		cfg.Gate.InterstitialBase += "/"
	}
}

// GateSettings converts to the gate's configuration.
func (c *Config) GateSettings() gate.Config {
	return gate.Config{
		RedirectDebounce: c.Gate.RedirectDebounce,
		ExtensionPrefix:  c.Gate.ExtensionPrefix,
		InterstitialBase: c.Gate.InterstitialBase,
	}
}

// LogSettings converts to the logger's configuration.
func (c *Config) LogSettings() infra.LogConfig {
	return infra.LogConfig{
		Path:       c.Log.Path,
		Level:      c.Log.Level,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// BaseURL is the daemon's HTTP root as seen by local clients.
func (c *Config) BaseURL() string {
	return "http://" + c.ListenAddr
}
