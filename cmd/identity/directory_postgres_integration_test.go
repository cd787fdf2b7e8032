package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidash/cmd/internal/pgtest"
)

func TestPostgresDirectory_CreateFindConflict(t *testing.T) {
	t.Parallel()

	pool, schema := pgtest.Schema(t)
	d, err := NewPostgresDirectory(pool, plainHasher{}, WithSchema(schema))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p, err := d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "User@Example.com", Password: "pw-long-enough", Now: now})
	require.NoError(t, err)

	_, err = d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "user@example.COM", Password: "pw-long-enough"})
	require.True(t, IsConflict(err), "got %v", err)

	auth, err := d.FindByIdentifier(ctx, " USER@example.com ")
	require.NoError(t, err)
	assert.Equal(t, p.ID, auth.ID)
	assert.Equal(t, "h:pw-long-enough", auth.PasswordHash)
	assert.True(t, auth.Active)
	assert.True(t, now.Equal(auth.CreatedAt))

	got, err := d.FindPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "User@Example.com", got.Email)

	require.NoError(t, d.SetActive(ctx, p.ID, false, time.Now().UTC()))
	got, err = d.FindPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = d.FindByIdentifier(ctx, "nobody@example.com")
	assert.True(t, IsNotFound(err))
}

func TestNewPostgresDirectory_Validation(t *testing.T) {
	_, err := NewPostgresDirectory(nil, plainHasher{})
	require.Error(t, err)

	_, err = NewPostgresDirectory(nil, plainHasher{}, WithSchema("bad-name"))
	require.Error(t, err)
}
