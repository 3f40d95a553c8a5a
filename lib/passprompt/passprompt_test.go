package passprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	f := &Fixed{Password: "hunter2"}
	pw, err := f.GetPasswd("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	pw, err = f.GetPasswd("Password: ")
	require.NoError(t, err)
	assert.Empty(t, pw, "gives up after one try")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APKSEAL_TEST_PASSWORD", "s3cret")
	pw, err := FromEnv("APKSEAL_TEST_PASSWORD").GetPasswd("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.IsType(t, PasswordPrompt{}, FromEnv("APKSEAL_TEST_UNSET_PASSWORD"))
}
