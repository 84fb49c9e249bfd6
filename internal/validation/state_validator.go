package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vidloader/internal/config"
)

// StateValidator checks that the license and quota file locations are
// usable before anything is read or written there.
type StateValidator struct {
	logger *slog.Logger
}

// NewStateValidator creates a new state validator
func NewStateValidator(logger *slog.Logger) *StateValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateValidator{
		logger: logger,
	}
}

// ValidateStateFile checks one state file location. A missing file is fine
// as long as its directory can be created and written.
func (v *StateValidator) ValidateStateFile(path string) error {
	if path == "" {
		return fmt.Errorf("state file path is empty")
	}
	if !filepath.IsAbs(path) {
		v.logger.Warn("State file path is relative",
			slog.String("file", path))
	}

	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return v.ValidateStateDirectory(filepath.Dir(path))
	case err != nil:
		v.logger.Error("Failed to stat state file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		v.logger.Error("State path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if !info.Mode().IsRegular() {
		v.logger.Error("State path is not a regular file",
			slog.String("path", path),
			slog.String("mode", info.Mode().String()))
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > config.MaxStateFileSize {
		v.logger.Warn("State file is larger than expected and will be treated as corrupted",
			slog.String("file", path),
			slog.Int64("size", info.Size()))
	}

	return v.ValidateStateDirectory(filepath.Dir(path))
}

// ValidateStateDirectory ensures dir exists or can be created and is writable
func (v *StateValidator) ValidateStateDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		v.logger.Error("Failed to create state directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	// Verify it's writable by creating a temp file
	f, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		v.logger.Error("State directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("state directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	v.logger.Debug("State directory validated",
		slog.String("directory", dir))
	return nil
}

// ValidatePaths checks both state files and joins every failure
func (v *StateValidator) ValidatePaths(paths config.PathsConfig) error {
	return errors.Join(
		v.ValidateStateFile(paths.LicenseFile),
		v.ValidateStateFile(paths.QuotaFile),
	)
}
