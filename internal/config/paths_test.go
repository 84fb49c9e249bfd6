package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetPaths tests the GetPaths function with various scenarios
func TestGetPaths(t *testing.T) {
	isolateUserDirs(t)

	t.Run("basic path resolution", func(t *testing.T) {
		paths, err := GetPaths()
		require.NoError(t, err)
		require.NotNil(t, paths)

		assert.True(t, filepath.IsAbs(paths.ConfigDir), "ConfigDir should be absolute")
		assert.True(t, filepath.IsAbs(paths.DataDir), "DataDir should be absolute")

		assert.Equal(t, AppName, filepath.Base(paths.ConfigDir))
		assert.Equal(t, AppName, filepath.Base(paths.DataDir))
		assert.Equal(t, filepath.Join(paths.ConfigDir, LicenseFileName), paths.LicenseFile)
		assert.Equal(t, filepath.Join(paths.DataDir, QuotaFileName), paths.QuotaFile)
		assert.Equal(t, filepath.Join(paths.ConfigDir, ConfigFileName), paths.ConfigFile)
	})

	t.Run("consistent calls return same paths", func(t *testing.T) {
		paths1, err1 := GetPaths()
		require.NoError(t, err1)

		paths2, err2 := GetPaths()
		require.NoError(t, err2)

		assert.Equal(t, paths1, paths2)
	})

	t.Run("xdg data home is honoured on linux", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("XDG layout applies to linux only")
		}
		dataHome := filepath.Join(t.TempDir(), "xdg-data")
		t.Setenv("XDG_DATA_HOME", dataHome)

		paths, err := GetPaths()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dataHome, AppName, QuotaFileName), paths.QuotaFile)
	})

	t.Run("relative xdg data home is ignored", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("XDG layout applies to linux only")
		}
		home := t.TempDir()
		t.Setenv("HOME", home)
		t.Setenv("XDG_DATA_HOME", "relative/dir")

		paths, err := GetPaths()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".local", "share", AppName), paths.DataDir)
	})
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	paths := pathsFromRoots(filepath.Join(root, "cfg"), filepath.Join(root, "data"))

	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{paths.ConfigDir, paths.DataDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		if runtime.GOOS != "windows" {
			assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
		}
	}

	// idempotent
	require.NoError(t, paths.EnsureDirectories())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0600))

	assert.True(t, FileExists(existing))
	assert.False(t, FileExists(filepath.Join(dir, "missing.json")))
}

func TestGetLogPath(t *testing.T) {
	paths := pathsFromRoots("/cfg", "/data")
	assert.Equal(t, filepath.Join("/data", AppName, "logs", "app.log"), paths.GetLogPath("app.log"))
}
