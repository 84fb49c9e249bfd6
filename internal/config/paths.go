package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains every file system location the application touches.
// License data lives under the per-user config directory, the quota counter
// under the per-user local data directory.
type Paths struct {
	ConfigDir   string
	DataDir     string
	LogsDir     string
	ConfigFile  string
	LicenseFile string
	QuotaFile   string
}

// GetPaths resolves the platform directories for the current user.
func GetPaths() (*Paths, error) {
	configRoot, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user config directory: %w", err)
	}

	dataRoot, err := userDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user data directory: %w", err)
	}

	return pathsFromRoots(configRoot, dataRoot), nil
}

func pathsFromRoots(configRoot, dataRoot string) *Paths {
	configDir := filepath.Join(configRoot, AppName)
	dataDir := filepath.Join(dataRoot, AppName)

	return &Paths{
		ConfigDir:   configDir,
		DataDir:     dataDir,
		LogsDir:     filepath.Join(dataDir, "logs"),
		ConfigFile:  filepath.Join(configDir, ConfigFileName),
		LicenseFile: filepath.Join(configDir, LicenseFileName),
		QuotaFile:   filepath.Join(dataDir, QuotaFileName),
	}
}

// EnsureDirectories creates the config and data directories with owner-only
// permissions.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetLogPath returns the path of a log file inside the logs directory.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// LogPathResolution logs the resolved locations at debug level.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Resolved application paths",
		slog.String("config_dir", p.ConfigDir),
		slog.String("data_dir", p.DataDir),
		slog.String("license_file", p.LicenseFile),
		slog.String("quota_file", p.QuotaFile),
	)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// userDataDir returns the per-user local data directory:
// %LOCALAPPDATA% on Windows, ~/Library/Application Support on macOS and
// $XDG_DATA_HOME (or ~/.local/share) elsewhere.
func userDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		return os.UserConfigDir()
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}
