// Package paths resolves configuration and data directory locations for the
// litewrap command.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user configuration and data directories.
const appName = "litewrap"

// CWD-relative data directory used when nothing else is configured.
const DefaultDataDirName = ".litewrap"

// DefaultDatabaseName is the database file created inside the data directory.
const DefaultDatabaseName = "litewrap.db"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "LITEWRAP_CONFIG_DIR"
	EnvDataDir   = "LITEWRAP_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/litewrap (fallback ~/.config/litewrap)
// macOS:   ~/Library/Application Support/litewrap
// Windows: %APPDATA%/litewrap
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > LITEWRAP_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configYAMLValue > LITEWRAP_DATA_DIR env > $(CWD)/.litewrap.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ResolveDatabase returns the database file to open: an explicit path wins,
// otherwise DefaultDatabaseName inside dataDir.
func ResolveDatabase(flag, dataDir string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	return filepath.Join(dataDir, DefaultDatabaseName), nil
}
