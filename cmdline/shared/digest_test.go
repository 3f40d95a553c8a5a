package shared

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.apk")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	d, err := DigestFile(path)
	require.NoError(t, err)
	assert.Equal(t, digest.FromString("hello"), d)
	assert.Equal(t, digest.SHA256, d.Algorithm())
}
