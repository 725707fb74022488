// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyphercomp/pokefetch/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plainfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "pikachu.json", "application/json", []byte(`{"name":"pikachu"}`))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "pikachu.json"), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(filepath.Join(tempDir, "pikachu.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"pikachu"}`, string(data))
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "ditto.json", "application/json", []byte(`{"v":1}`))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "ditto.json", "application/json", []byte(`{"v":2}`))
		require.NoError(t, err)

		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(filepath.Join(tempDir, "ditto.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(data))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "application/json", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.json", "application/json", []byte("data"))
		assert.Error(t, err)
	})
}

func TestErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "errors.txt")
	log, err := local.NewErrorLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(context.Background(), "missingno", "unexpected status 404"))
	require.NoError(t, log.Append(context.Background(), "glitchmon", "malformed response body"))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "missingno: unexpected status 404")
	assert.Contains(t, lines[1], "glitchmon: malformed response body")
}

func TestErrorLogRequiresPath(t *testing.T) {
	_, err := local.NewErrorLog("")
	assert.Error(t, err)
}
