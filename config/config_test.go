package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apkseal.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeConfig(t, `
signing:
  key_file: key.pem
  cert_file: cert.pem
  key_alias: release
  v1: false
  created_by: builder
  min_sdk_version: 24
  parallelism: 4
logging:
  level: debug
  file: "-"
`)
	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, "key.pem", cfg.Signing.KeyFile)
	assert.Equal(t, "release", cfg.Signing.KeyAlias)
	assert.False(t, cfg.Signing.V1Enabled())
	assert.True(t, cfg.Signing.V2Enabled(), "absent means enabled")
	assert.Equal(t, 24, cfg.Signing.MinSdkVersion)
	assert.Equal(t, 4, cfg.Signing.Parallelism)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "-", cfg.Logging.File)
}

func TestReadFileEmpty(t *testing.T) {
	cfg, err := ReadFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.True(t, cfg.Signing.V1Enabled())
	assert.True(t, cfg.Signing.V2Enabled())
}

func TestReadFileInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":  "signing:\n  keyfile: x\n",
		"half pair":    "signing:\n  key_file: key.pem\n",
		"both sources": "signing:\n  key_file: a\n  cert_file: b\n  pkcs12_file: c\n",
		"no schemes":   "signing:\n  v1: false\n  v2: false\n",
		"parallelism":  "signing:\n  parallelism: -1\n",
		"level":        "logging:\n  level: loud\n",
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			_, err := ReadFile(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("USERPROFILE", "")
	t.Setenv("HOME", "/home/someone")
	assert.Equal(t, "/home/someone/.config/apkseal/apkseal.yml", DefaultConfig())
}
