package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state in system directories (root)
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds default paths for the execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	DataDir    string // encrypted state, key and pid lock
	ConfigPath string // optional YAML config
	LogPath    string // rotated daemon log
	IsRoot     bool
}

// DetectExecMode determines default paths based on effective UID.
func DetectExecMode() *ExecModeConfig {
	return detectExecMode(os.Geteuid(), GetRealUserHome(), os.Getenv)
}

func detectExecMode(euid int, home string, getenv func(string) string) *ExecModeConfig {
	if euid == 0 && getenv("SUDO_USER") == "" {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			DataDir:    "/var/lib/sitemon",
			ConfigPath: "/etc/sitemon/config.yaml",
			LogPath:    "/var/log/sitemon/sitemon.log",
			IsRoot:     true,
		}
	}

	dataHome := getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	configHome := getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	dataDir := filepath.Join(dataHome, "sitemon")

	return &ExecModeConfig{
		Mode:       ExecModeUser,
		DataDir:    dataDir,
		ConfigPath: filepath.Join(configHome, "sitemon", "config.yaml"),
		LogPath:    filepath.Join(dataDir, "sitemon.log"),
		IsRoot:     euid == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
