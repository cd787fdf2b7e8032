package token

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken_StableAndKeyed(t *testing.T) {
	c := newTestCodec(t)

	h1 := c.HashToken("abc.def.ghi")
	h2 := c.HashToken("  abc.def.ghi\n")
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, c.HashToken("abc.def.ghj"))

	other, err := New(Options{Secret: []byte(strings.Repeat("k", 48))})
	require.NoError(t, err)
	assert.NotEqual(t, h1, other.HashToken("abc.def.ghi"))
}

func TestLoadSecret(t *testing.T) {
	_, err := LoadSecret("", "")
	require.ErrorIs(t, err, ErrSecretMissing)

	_, err = LoadSecret("too-short", "")
	require.ErrorIs(t, err, ErrSecretTooShort)

	got, err := LoadSecret(strings.Repeat("s", 32), "")
	require.NoError(t, err)
	assert.Len(t, got, 32)

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("f", 40)+"\n"), 0o600))

	got, err = LoadSecret(strings.Repeat("s", 32), path)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("f", 40), string(got))

	_, err = LoadSecret("", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv(SecretEnvKey, strings.Repeat("e", 33))
	t.Setenv(SecretFileEnvKey, "")

	got, err := SecretFromEnv()
	require.NoError(t, err)
	assert.Len(t, got, 33)
}
