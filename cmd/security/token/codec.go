package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Kind separates access credentials from refresh credentials.
type Kind string

const (
	// KindAccess is a short-lived bearer credential verified by signature only.
	KindAccess Kind = "access"
	// KindRefresh is a long-lived credential backed by a server-side record.
	KindRefresh Kind = "refresh"
)

const (
	// MinSecretBytes is the minimum accepted signing secret length.
	MinSecretBytes = 32

	// maxTokenBytes bounds the input accepted by Decode.
	maxTokenBytes = 4096

	derivedKeyBytes = 32
)

// Claims is the signed payload of both credential kinds.
// For refresh credentials ID (jti) carries the correlation id.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c Claims) PrincipalID() string { return c.Subject }

// CorrelationID returns the jti claim (empty for access credentials).
func (c Claims) CorrelationID() string { return c.ID }

// Expiry returns the exp a credential minted at now with ttl carries.
// Persisted expiries must use it so they agree with the signed claim.
func Expiry(now time.Time, ttl time.Duration) time.Time {
	return jwt.NewNumericDate(now.Add(ttl)).Time
}

// Options configures a Codec.
type Options struct {
	// Secret is the root signing secret. Per-kind keys are derived from it.
	Secret []byte
	// Issuer is set as "iss" and required on decode.
	Issuer string
	// Leeway is the tolerated clock skew for exp/iat checks.
	Leeway time.Duration
}

// Codec signs and verifies credentials. It is safe for concurrent use.
type Codec struct {
	issuer string
	leeway time.Duration

	accessKey  []byte
	refreshKey []byte
	digestKey  []byte
}

// New derives the per-kind keys from opts.Secret and returns a Codec.
func New(opts Options) (*Codec, error) {
	if len(opts.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	if len(opts.Secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	if opts.Leeway < 0 {
		return nil, fmt.Errorf("token: negative leeway %s", opts.Leeway)
	}

	c := &Codec{
		issuer: strings.TrimSpace(opts.Issuer),
		leeway: opts.Leeway,
	}

	var err error
	if c.accessKey, err = deriveKey(opts.Secret, "candidash/credential/access"); err != nil {
		return nil, err
	}
	if c.refreshKey, err = deriveKey(opts.Secret, "candidash/credential/refresh"); err != nil {
		return nil, err
	}
	if c.digestKey, err = deriveKey(opts.Secret, "candidash/credential/digest"); err != nil {
		return nil, err
	}
	return c, nil
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, derivedKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("token: derive %s: %w", info, err)
	}
	return key, nil
}

// EncodeAccess mints an access credential for principalID valid for ttl.
func (c *Codec) EncodeAccess(principalID string, now time.Time, ttl time.Duration) (string, error) {
	return c.sign(KindAccess, principalID, "", now, ttl)
}

// EncodeRefresh mints a refresh credential and returns it with its fresh correlation id.
func (c *Codec) EncodeRefresh(principalID string, now time.Time, ttl time.Duration) (string, string, error) {
	correlationID := uuid.NewString()
	tok, err := c.sign(KindRefresh, principalID, correlationID, now, ttl)
	if err != nil {
		return "", "", err
	}
	return tok, correlationID, nil
}

func (c *Codec) sign(kind Kind, principalID, jti string, now time.Time, ttl time.Duration) (string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl %s", ErrInvalidClaims, ttl)
	}

	key, err := c.key(kind)
	if err != nil {
		return "", err
	}

	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    c.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Decode verifies raw and returns its claims when it is a valid credential of kind expected.
//
// On failure the error is a *DecodeError. When the reason is ErrExpired the
// signature and kind were verified and the returned Claims are populated, so
// callers can still resolve the server-side record of a stale refresh credential.
func (c *Codec) Decode(raw string, expected Kind, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenBytes {
		return Claims{}, decodeErr(ErrMalformed, nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, c.verificationKey)
	if err != nil {
		reason := classify(err)
		if reason != ErrExpired {
			return Claims{}, decodeErr(reason, err)
		}
		if claims.Kind != expected {
			return Claims{}, decodeErr(ErrWrongKind, nil)
		}
		return claims, decodeErr(ErrExpired, err)
	}

	if claims.Kind != expected {
		return Claims{}, decodeErr(ErrWrongKind, fmt.Errorf("got %q, want %q", claims.Kind, expected))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, decodeErr(ErrMalformed, errors.New("missing subject"))
	}
	if expected == KindRefresh && claims.ID == "" {
		return Claims{}, decodeErr(ErrMalformed, errors.New("missing correlation id"))
	}
	return claims, nil
}

// verificationKey selects the key by the declared kind, so a credential of
// either kind verifies and the kind check happens after the signature check.
func (c *Codec) verificationKey(t *jwt.Token) (any, error) {
	claims, ok := t.Claims.(*Claims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return c.key(claims.Kind)
}

func (c *Codec) key(kind Kind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.accessKey, nil
	case KindRefresh:
		return c.refreshKey, nil
	default:
		return nil, fmt.Errorf("unknown credential kind %q", kind)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
