// internal/storage/file_store_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveTextFileWritesAtomically(t *testing.T) {
	base := t.TempDir()
	fs, err := NewFileStore(base)
	require.NoError(t, err)

	require.NoError(t, fs.SaveTextFile("nested/dir", "note.txt", []byte("first")))

	content, err := fs.LoadTextFile("nested/dir", "note.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), content)

	// Overwrite goes through the same temp-file rename; no temp remains.
	require.NoError(t, fs.SaveTextFile("nested/dir", "note.txt", []byte("second")))
	content, err = fs.LoadTextFile("nested/dir", "note.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), content)

	_, err = os.Stat(filepath.Join(base, "nested/dir", "note.txt.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveJSONFileRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	type settings struct {
		Model   string  `json:"model"`
		Chance  float64 `json:"chance"`
		Enabled bool    `json:"enabled"`
	}

	in := settings{Model: "gpt-4o-mini", Chance: 0.35, Enabled: true}
	require.NoError(t, fs.SaveJSONFile("", "settings.json", in))

	var out settings
	require.NoError(t, fs.LoadJSONFile("", "settings.json", &out))
	assert.Equal(t, in, out)
}

func TestFileExists(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, fs.FileExists("", "ghost.json"))

	require.NoError(t, fs.SaveTextFile("", "ghost.json", []byte("{}")))
	assert.True(t, fs.FileExists("", "ghost.json"))
}
