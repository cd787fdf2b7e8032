package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "h:" + plain, nil }

func TestMemoryDirectory_CreateAndFind(t *testing.T) {
	d := NewMemoryDirectory(plainHasher{})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := "  Ada "
	p, err := d.CreatePrincipal(ctx, CreatePrincipalInput{
		Email:     " Ada@Example.COM ",
		Password:  "correct horse battery",
		FirstName: &first,
		Now:       now,
	})
	require.NoError(t, err)
	assert.Len(t, p.ID, 26)
	assert.Equal(t, "Ada@Example.COM", p.Email)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Ada", *p.FirstName)
	assert.Nil(t, p.LastName)
	assert.True(t, p.Active)
	assert.Equal(t, now, p.CreatedAt)

	auth, err := d.FindByIdentifier(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, auth.ID)
	assert.Equal(t, "h:correct horse battery", auth.PasswordHash)

	got, err := d.FindPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestMemoryDirectory_DuplicateEmailConflicts(t *testing.T) {
	d := NewMemoryDirectory(plainHasher{})
	ctx := context.Background()

	_, err := d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "a@b.io", Password: "pw-one-long"})
	require.NoError(t, err)

	_, err = d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "A@B.IO", Password: "pw-two-long"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var ce ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "email", ce.Field)
}

func TestMemoryDirectory_InvalidInputAndMisses(t *testing.T) {
	d := NewMemoryDirectory(plainHasher{})
	ctx := context.Background()

	_, err := d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "not-an-email", Password: "x"})
	assert.True(t, IsInvalidInput(err))

	_, err = d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "a@b.io", Password: "   "})
	assert.True(t, IsInvalidInput(err))

	_, err = d.FindByIdentifier(ctx, "ghost@b.io")
	assert.True(t, IsNotFound(err))

	_, err = d.FindPrincipal(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(d.SetActive(ctx, "missing", false, time.Now())))
}

func TestMemoryDirectory_SetActive(t *testing.T) {
	d := NewMemoryDirectory(plainHasher{})
	ctx := context.Background()

	p, err := d.CreatePrincipal(ctx, CreatePrincipalInput{Email: "a@b.io", Password: "pw-long-enough"})
	require.NoError(t, err)

	require.NoError(t, d.SetActive(ctx, p.ID, false, time.Now()))

	auth, err := d.FindByIdentifier(ctx, "a@b.io")
	require.NoError(t, err)
	assert.False(t, auth.Active)
}

func TestMemoryDirectory_CanceledContext(t *testing.T) {
	d := NewMemoryDirectory(plainHasher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.FindByIdentifier(ctx, "a@b.io")
	require.ErrorIs(t, err, context.Canceled)
}
