// Package paths resolves XDG-style directories for Vertico's operator
// tooling (verticoctl config/state/log files). The daemons themselves
// (dispatcherd, carctrld, safetymond) take all paths as explicit flags;
// this package only backs verticoctl's defaults.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "vertico"

func configRoot() (string, error) {
	return rootWithFallback("XDG_CONFIG_HOME", os.UserConfigDir, ".config")
}

func stateRoot() (string, error) {
	noOSDefault := func() (string, error) {
		return "", fmt.Errorf("no OS state directory function")
	}

	return rootWithFallback("XDG_STATE_HOME", noOSDefault, filepath.Join(".local", "state"))
}

func rootWithFallback(xdgEnv string, osFn func() (string, error), fallbackDir string) (string, error) {
	// Priority 1: Explicit XDG env var (cross-platform).
	if xdg := os.Getenv(xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	// Priority 2: OS-specific default (macOS ~/Library/..., Windows %AppData%, Linux ~/.config).
	root, err := osFn()
	if err == nil && root != "" {
		return filepath.Join(root, appName), nil
	}

	// Priority 3: Home-dir fallback.
	home, homeErr := os.UserHomeDir()
	if homeErr == nil && home != "" {
		return filepath.Join(home, fallbackDir, appName), nil
	}

	if err != nil {
		return "", err
	}

	return "", fmt.Errorf("resolve user home directory")
}

// ConfigRoot returns the user config root directory for Vertico.
func ConfigRoot() (string, error) {
	return configRoot()
}

// StateRoot returns the user state root directory for Vertico.
func StateRoot() (string, error) {
	return stateRoot()
}

// LogsDir returns the default log directory for Vertico.
func LogsDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "logs"), nil
}

// DefaultLogFile returns the default log file path for verticoctl.
func DefaultLogFile() (string, error) {
	logsDir, err := LogsDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(logsDir, "verticoctl.log"), nil
}

// DefaultFleetConfigFile returns the default path verticoctl looks for
// the optional fleet.yaml topology hint file (internal/fleetconfig).
func DefaultFleetConfigFile() (string, error) {
	root, err := configRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "fleet.yaml"), nil
}
