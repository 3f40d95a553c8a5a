package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFile(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })
	path := filepath.Join(t.TempDir(), "apkseal.log")
	require.NoError(t, Setup("warn", path))
	assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
	log.Info().Msg("dropped")
	log.Warn().Str("path", "out.apk").Msg("kept")
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "dropped")
	assert.Contains(t, string(blob), `"path":"out.apk"`)
	assert.Contains(t, string(blob), `"message":"kept"`)
}

func TestSetupLevel(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })
	require.NoError(t, Setup("", "-"))
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
	assert.Error(t, Setup("loud", "-"))
}
