package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef-test")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(Options{Secret: testSecret, Issuer: "candidash-test"})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsWeakSecret(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrSecretMissing)

	_, err = New(Options{Secret: []byte("short")})
	require.ErrorIs(t, err, ErrSecretTooShort)
}

func TestAccess_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, principal := range []string{"01J00000000000000000000001", "p", "user-42"} {
		tok, err := c.EncodeAccess(principal, now, 15*time.Minute)
		require.NoError(t, err)

		claims, err := c.Decode(tok, KindAccess, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, principal, claims.PrincipalID())
		assert.Equal(t, KindAccess, claims.Kind)
		assert.Equal(t, "candidash-test", claims.Issuer)
		assert.Empty(t, claims.CorrelationID())
	}
}

func TestAccess_ExpiredAfterTTL(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	tok, err := c.EncodeAccess("p1", now, ttl)
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now.Add(ttl-time.Second))
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now.Add(ttl))
	require.ErrorIs(t, err, ErrExpired)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, ErrExpired, de.Reason)
}

func TestRefresh_ExpiredStillCarriesClaims(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, corr, err := c.EncodeRefresh("p1", now, time.Hour)
	require.NoError(t, err)

	claims, err := c.Decode(tok, KindRefresh, now.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "p1", claims.PrincipalID())
	assert.Equal(t, corr, claims.CorrelationID())
}

func TestRefresh_CorrelationIDsAreUnique(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seen := make(map[string]struct{})
	tokens := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, corr, err := c.EncodeRefresh("p1", now, time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, corr)

		_, dup := seen[corr]
		require.False(t, dup, "duplicate correlation id %q", corr)
		seen[corr] = struct{}{}

		_, dup = tokens[tok]
		require.False(t, dup, "duplicate refresh token")
		tokens[tok] = struct{}{}

		claims, err := c.Decode(tok, KindRefresh, now)
		require.NoError(t, err)
		assert.Equal(t, corr, claims.CorrelationID())
	}
}

func TestDecode_WrongKind(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	access, err := c.EncodeAccess("p1", now, time.Minute)
	require.NoError(t, err)
	refresh, _, err := c.EncodeRefresh("p1", now, time.Hour)
	require.NoError(t, err)

	_, err = c.Decode(access, KindRefresh, now)
	require.ErrorIs(t, err, ErrWrongKind)

	_, err = c.Decode(refresh, KindAccess, now)
	require.ErrorIs(t, err, ErrWrongKind)

	// Still a wrong-kind failure once expired.
	_, err = c.Decode(access, KindRefresh, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestDecode_ByteFlipAlwaysFails(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, kind := range []Kind{KindAccess, KindRefresh} {
		var tok string
		var err error
		if kind == KindAccess {
			tok, err = c.EncodeAccess("p1", now, time.Hour)
		} else {
			tok, _, err = c.EncodeRefresh("p1", now, time.Hour)
		}
		require.NoError(t, err)

		for i := 0; i < len(tok); i++ {
			b := []byte(tok)
			b[i] ^= 0x01
			_, err := c.Decode(string(b), kind, now)
			require.Error(t, err, "kind=%s flipped byte %d decoded successfully", kind, i)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.NotEqual(t, ErrExpired, de.Reason)
		}
	}
}

func TestDecode_ForeignSecretIsSignatureInvalid(t *testing.T) {
	c := newTestCodec(t)
	other, err := New(Options{Secret: []byte(strings.Repeat("z", 40)), Issuer: "candidash-test"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := other.EncodeAccess("p1", now, time.Hour)
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestDecode_Malformed(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, raw := range []string{"", "   ", "abc", "a.b.c", strings.Repeat("x", maxTokenBytes+1)} {
		_, err := c.Decode(raw, KindAccess, now)
		require.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestDecode_RejectsAlgNone(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims := Claims{
		Kind: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "p1",
			Issuer:    "candidash-test",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)
}

func TestDecode_UnknownKindIsMalformed(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims := Claims{
		Kind: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "p1",
			Issuer:    "candidash-test",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_RejectsInvalidInput(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	_, err := c.EncodeAccess("  ", now, time.Minute)
	require.ErrorIs(t, err, ErrInvalidClaims)

	_, _, err = c.EncodeRefresh("p1", now, 0)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestDecode_LeewayToleratesSkew(t *testing.T) {
	c, err := New(Options{Secret: testSecret, Leeway: 30 * time.Second})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := c.EncodeAccess("p1", now, time.Minute)
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now.Add(time.Minute+10*time.Second))
	require.NoError(t, err)

	_, err = c.Decode(tok, KindAccess, now.Add(time.Minute+31*time.Second))
	require.ErrorIs(t, err, ErrExpired)
}

func TestExpiry_MatchesSignedClaim(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)

	tok, _, err := c.EncodeRefresh("p1", now, time.Hour)
	require.NoError(t, err)

	claims, err := c.Decode(tok, KindRefresh, now)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(Expiry(now, time.Hour)))
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), Expiry(now, time.Hour).UTC())
}
