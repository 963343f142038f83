package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ServeArgs returns the arguments that run the daemon in the foreground.
func ServeArgs(configPath string) []string {
	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// StartDaemon spawns a detached daemon from the running executable and returns its pid.
func StartDaemon(configPath string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}
	return StartDaemonWithPath(executable, configPath)
}

// StartDaemonWithPath spawns executable as a detached daemon.
// The child runs in its own session with no stdio; it logs to its log file.
func StartDaemonWithPath(executable, configPath string) (int, error) {
	cmd := exec.Command(executable, ServeArgs(configPath)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to detach daemon: %w", err)
	}
	return pid, nil
}
