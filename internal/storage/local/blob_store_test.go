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

	"github.com/JakeFAU/affiche/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "snapshots")
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
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	t.Run("WritesNestedPath", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "affiche/2026-10-15/a.json", "application/json", strings.NewReader(`{"count":1}`))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(uri, "file://"))

		got, err := os.ReadFile(filepath.Join(dir, "affiche", "2026-10-15", "a.json"))
		require.NoError(t, err)
		assert.Equal(t, `{"count":1}`, string(got))
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.json", "", strings.NewReader("x"))
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("RequiresPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
