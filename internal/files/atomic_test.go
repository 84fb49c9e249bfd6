package files

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	t.Run("creates file and parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

		require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), 0600))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))

		if runtime.GOOS != "windows" {
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		}
	})

	t.Run("replaces existing content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0600))

		require.NoError(t, WriteAtomic(path, []byte("new"), 0600))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")

		for i := 0; i < 3; i++ {
			require.NoError(t, WriteAtomic(path, []byte("x"), 0600))
		}

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "state.json", entries[0].Name())
	})

	t.Run("fails when target is a directory", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "occupied")
		require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0700))

		err := WriteAtomic(target, []byte("x"), 0600)
		assert.Error(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left: %s", e.Name())
		}
	})
}

func TestReadLimited(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small")
	require.NoError(t, os.WriteFile(small, []byte("hello"), 0600))

	data, err := ReadLimited(small, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadLimited(small, 4)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = ReadLimited(filepath.Join(dir, "missing"), 10)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadLimited(dir, 10)
	assert.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	require.NoError(t, RemoveIfExists(path))
	assert.NoFileExists(t, path)

	// second removal is a no-op
	require.NoError(t, RemoveIfExists(path))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.DirExists(t, dir)
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(""))
}
