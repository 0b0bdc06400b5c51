package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/out/profiles"

	manager, err := NewManager(fs, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, manager.OutputDir())
	assert.Zero(t, manager.Count())
	assert.False(t, manager.Has("instagram"))

	require.NoError(t, manager.Put("instagram", map[string]interface{}{"username": "instagram", "is_verified": true}))

	raw, err := afero.ReadFile(fs, filepath.Join(dir, "instagram.json"))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "instagram", decoded["username"])

	exists, _ := afero.Exists(fs, filepath.Join(dir, "instagram.json.tmp"))
	assert.False(t, exists, "temporary file is renamed away")

	assert.True(t, manager.Has("instagram"))
	assert.Equal(t, 1, manager.Count())

	// a file written by someone else is picked up lazily
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "manual.json"), []byte(`{}`), 0644))
	assert.True(t, manager.Has("manual"))

	// and on the next scan
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	again, err := NewManager(fs, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Count())
	assert.False(t, again.Has("notes"))
}

func TestManagerRejectsPathKeys(t *testing.T) {
	manager, err := NewManager(afero.NewMemMapFs(), "/out")
	require.NoError(t, err)

	for _, key := range []string{"", ".", "..", "../escape", `a\b`, "a/b"} {
		assert.Error(t, manager.Put(key, 1), key)
		assert.False(t, manager.Has(key), key)
	}
}
