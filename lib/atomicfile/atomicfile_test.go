package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0600))
	f, err := New(dest, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("new "))
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("contents"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(12), f.Size())
	// destination is untouched until commit
	blob, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(blob))

	require.NoError(t, f.Commit())
	blob, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(blob))
	// committing twice fails, closing after commit is harmless
	assert.ErrorIs(t, f.Commit(), ErrClosed)
	assert.NoError(t, f.Close())
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.zip")
	f, err := New(dest, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = f.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrClosed)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file should be removed")
}
