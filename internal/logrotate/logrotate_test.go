package logrotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apkseal.log")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Write([]byte("one\n"))
	require.NoError(t, err)
	require.NoError(t, os.Rename(path, path+".1"))
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)

	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(old))
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(current))
}
