package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ContainsOrderedMigrations(t *testing.T) {
	names, err := fs.Glob(FS(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "00001_init.sql", names[0])

	raw, err := fs.ReadFile(FS(), names[0])
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "-- +goose Up")
	assert.Contains(t, body, "-- +goose Down")
	assert.Contains(t, body, "CHECK (revoked = (revoked_at IS NOT NULL))")
	assert.True(t, strings.Contains(body, "uq_users_email_norm"))
}

func TestUp_RejectsBadInput(t *testing.T) {
	_, err := Up(t.Context(), nil, `x"; DROP TABLE users; --`)
	require.ErrorContains(t, err, "invalid schema identifier")

	_, err = Up(t.Context(), nil, "candidash")
	require.ErrorContains(t, err, "nil pool")
}
