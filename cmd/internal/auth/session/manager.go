package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"candidash/cmd/identity"
	"candidash/cmd/security/token"
)

// Codec signs and verifies credentials. *token.Codec implements it.
type Codec interface {
	EncodeAccess(principalID string, now time.Time, ttl time.Duration) (string, error)
	EncodeRefresh(principalID string, now time.Time, ttl time.Duration) (tok, correlationID string, err error)
	Decode(raw string, expected token.Kind, now time.Time) (token.Claims, error)
	HashToken(raw string) string
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(plain, hash string) bool
}

// PrincipalLookup resolves principals. identity.Directory implements it.
type PrincipalLookup interface {
	FindByIdentifier(ctx context.Context, identifier string) (identity.PrincipalAuth, error)
	FindPrincipal(ctx context.Context, id string) (identity.Principal, error)
}

// timingBurner is implemented by verifiers that can spend a verification's
// worth of work on an unknown identifier.
type timingBurner interface {
	Burn(plain string)
}

// TokenPair is the result of a successful Login or Refresh.
type TokenPair struct {
	PrincipalID      string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Manager orchestrates login, refresh rotation, logout and logout-all.
//
// Every error it returns is a *Error; use KindOf to branch on the outcome.
type Manager struct {
	cfg        Config
	store      Store
	codec      Codec
	principals PrincipalLookup
	verifier   PasswordVerifier

	clock   Clock
	log     *slog.Logger
	metrics *Metrics
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mt *Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// NewManager wires a Manager. All collaborators are required.
func NewManager(cfg Config, store Store, codec Codec, principals PrincipalLookup, verifier PasswordVerifier, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || codec == nil || principals == nil || verifier == nil {
		return nil, fmt.Errorf("%w: missing collaborator", ErrConfig)
	}

	m := &Manager{
		cfg:        cfg,
		store:      store,
		codec:      codec,
		principals: principals,
		verifier:   verifier,
		clock:      SystemClock,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}
	return m, nil
}

// Config returns the configuration the Manager was built with.
func (m *Manager) Config() Config { return m.cfg }

// Now returns the Manager's current time.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Login verifies the password of the principal named by identifier and
// starts a new lineage.
//
// An unknown identifier and a wrong password both yield InvalidCredentials.
// The active flag is only consulted after the password matched.
func (m *Manager) Login(ctx context.Context, identifier, password string) (pair TokenPair, err error) {
	const op = "session.Login"
	defer func() { m.metrics.observe("login", err) }()

	now := m.clock.Now()

	pa, err := m.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			if b, ok := m.verifier.(timingBurner); ok {
				b.Burn(password)
			}
			m.log.InfoContext(ctx, "session.login.failed", "reason", "unknown_identifier")
			return TokenPair{}, fail(op, InvalidCredentials, nil)
		}
		return TokenPair{}, m.unavailable(ctx, op, err)
	}

	if !m.verifier.Verify(password, pa.PasswordHash) {
		m.log.InfoContext(ctx, "session.login.failed", "reason", "bad_password", "principal_id", pa.ID)
		return TokenPair{}, fail(op, InvalidCredentials, nil)
	}
	if !pa.Active {
		m.log.InfoContext(ctx, "session.login.failed", "reason", "inactive", "principal_id", pa.ID)
		return TokenPair{}, fail(op, InactiveAccount, nil)
	}

	pair, rec, err := m.issue(ctx, now, pa.ID)
	if err != nil {
		return TokenPair{}, m.unavailable(ctx, op, err)
	}

	m.log.InfoContext(ctx, "session.login.success",
		"principal_id", pa.ID,
		"lineage_id", rec.LineageID,
	)
	return pair, nil
}

func (m *Manager) issue(ctx context.Context, now time.Time, principalID string) (TokenPair, RefreshRecord, error) {
	refresh, corr, err := m.codec.EncodeRefresh(principalID, now, m.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, RefreshRecord{}, err
	}
	access, err := m.codec.EncodeAccess(principalID, now, m.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, RefreshRecord{}, err
	}

	rec, err := m.store.Create(ctx, NewRecord{
		TokenHash:     m.codec.HashToken(refresh),
		PrincipalID:   principalID,
		CorrelationID: corr,
		ExpiresAt:     token.Expiry(now, m.cfg.RefreshTTL),
		CreatedAt:     now,
	})
	if err != nil {
		return TokenPair{}, RefreshRecord{}, err
	}

	return TokenPair{
		PrincipalID:      principalID,
		AccessToken:      access,
		AccessExpiresAt:  token.Expiry(now, m.cfg.AccessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, rec, nil
}

var (
	errClaimsMismatch = errors.New("claims do not match record")
	errReused         = errors.New("refresh credential already used")
	errRecordExpired  = errors.New("refresh record expired")
)

// Refresh exchanges a refresh credential for a new pair and revokes it.
//
// The checks run in order: signature and kind (InvalidToken), presence in
// the store (InvalidToken), revocation (ReusedToken), expiry (ExpiredToken).
// A signed credential whose exp has passed still reaches the store lookup so
// a replayed stale credential is reported as reuse.
func (m *Manager) Refresh(ctx context.Context, presented string) (pair TokenPair, err error) {
	const op = "session.Refresh"
	defer func() { m.metrics.observe("refresh", err) }()

	now := m.clock.Now()

	claims, derr := m.codec.Decode(presented, token.KindRefresh, now)
	if derr != nil && !errors.Is(derr, token.ErrExpired) {
		m.log.InfoContext(ctx, "session.refresh.rejected", "reason", decodeReason(derr))
		return TokenPair{}, fail(op, InvalidToken, derr)
	}

	var (
		seen    RefreshRecord
		refresh string
		access  string
	)
	succ, err := m.store.Rotate(ctx, now, m.codec.HashToken(presented), func(cur RefreshRecord) (NewRecord, error) {
		seen = cur
		switch {
		case cur.PrincipalID != claims.PrincipalID() || cur.CorrelationID != claims.CorrelationID():
			return NewRecord{}, errClaimsMismatch
		case cur.Revoked:
			return NewRecord{}, errReused
		case !now.Before(cur.ExpiresAt):
			return NewRecord{}, errRecordExpired
		}

		tok, corr, err := m.codec.EncodeRefresh(cur.PrincipalID, now, m.cfg.RefreshTTL)
		if err != nil {
			return NewRecord{}, err
		}
		acc, err := m.codec.EncodeAccess(cur.PrincipalID, now, m.cfg.AccessTTL)
		if err != nil {
			return NewRecord{}, err
		}
		refresh, access = tok, acc

		return NewRecord{
			TokenHash:     m.codec.HashToken(tok),
			PrincipalID:   cur.PrincipalID,
			LineageID:     cur.LineageID,
			CorrelationID: corr,
			ExpiresAt:     token.Expiry(now, m.cfg.RefreshTTL),
			CreatedAt:     now,
		}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound), errors.Is(err, errClaimsMismatch):
			m.log.InfoContext(ctx, "session.refresh.rejected", "reason", "unknown_record")
			return TokenPair{}, fail(op, InvalidToken, err)
		case errors.Is(err, errReused), errors.Is(err, ErrRecordRevoked):
			m.reuseDetected(ctx, now, seen)
			return TokenPair{}, fail(op, ReusedToken, err)
		case errors.Is(err, errRecordExpired):
			m.log.InfoContext(ctx, "session.refresh.rejected",
				"reason", "expired",
				"principal_id", seen.PrincipalID,
				"lineage_id", seen.LineageID,
			)
			return TokenPair{}, fail(op, ExpiredToken, err)
		default:
			return TokenPair{}, m.unavailable(ctx, op, err)
		}
	}

	m.log.DebugContext(ctx, "session.refresh.rotated",
		"principal_id", succ.PrincipalID,
		"lineage_id", succ.LineageID,
		"previous_id", seen.ID,
		"record_id", succ.ID,
	)
	return TokenPair{
		PrincipalID:      succ.PrincipalID,
		AccessToken:      access,
		AccessExpiresAt:  token.Expiry(now, m.cfg.AccessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: succ.ExpiresAt,
	}, nil
}

func (m *Manager) reuseDetected(ctx context.Context, now time.Time, rec RefreshRecord) {
	m.metrics.reuseDetected()
	m.log.WarnContext(ctx, "session.refresh.reuse_detected",
		"principal_id", rec.PrincipalID,
		"lineage_id", rec.LineageID,
		"record_id", rec.ID,
		"cascade", m.cfg.ReuseRevokesLineage,
	)
	if !m.cfg.ReuseRevokesLineage || rec.LineageID == "" {
		return
	}

	n, err := m.store.RevokeLineage(ctx, now, rec.LineageID)
	if err != nil {
		m.log.ErrorContext(ctx, "session.refresh.lineage_revoke_failed",
			"lineage_id", rec.LineageID,
			"err", err,
		)
		return
	}
	m.metrics.revokedRecords("reuse_cascade", n)
	m.log.WarnContext(ctx, "session.refresh.lineage_revoked",
		"lineage_id", rec.LineageID,
		"revoked", n,
	)
}

// Logout revokes the presented refresh credential. It is idempotent: unknown,
// forged, or already revoked credentials succeed silently. Only
// StoreUnavailable is ever returned.
func (m *Manager) Logout(ctx context.Context, presented string) (err error) {
	const op = "session.Logout"
	defer func() { m.metrics.observe("logout", err) }()

	now := m.clock.Now()

	if _, derr := m.codec.Decode(presented, token.KindRefresh, now); derr != nil && !errors.Is(derr, token.ErrExpired) {
		return nil
	}

	rec, err := m.store.FindByToken(ctx, m.codec.HashToken(presented))
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return m.unavailable(ctx, op, err)
	}
	if rec.Revoked {
		return nil
	}

	if err := m.store.Revoke(ctx, now, rec.ID); err != nil {
		return m.unavailable(ctx, op, err)
	}
	m.log.InfoContext(ctx, "session.logout",
		"principal_id", rec.PrincipalID,
		"lineage_id", rec.LineageID,
	)
	return nil
}

// LogoutAll revokes every refresh record of principalID in one bulk operation.
func (m *Manager) LogoutAll(ctx context.Context, principalID string) (err error) {
	const op = "session.LogoutAll"
	defer func() { m.metrics.observe("logout_all", err) }()

	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return fail(op, InvalidToken, errors.New("empty principal id"))
	}

	n, err := m.store.RevokeAllFor(ctx, m.clock.Now(), principalID)
	if err != nil {
		return m.unavailable(ctx, op, err)
	}
	m.metrics.revokedRecords("logout_all", n)
	m.log.InfoContext(ctx, "session.logout_all",
		"principal_id", principalID,
		"revoked", n,
	)
	return nil
}

// Authenticate resolves the principal behind an access credential.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (p identity.Principal, err error) {
	const op = "session.Authenticate"

	claims, err := m.codec.Decode(accessToken, token.KindAccess, m.clock.Now())
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return identity.Principal{}, fail(op, ExpiredToken, err)
		}
		return identity.Principal{}, fail(op, InvalidToken, err)
	}

	p, err = m.principals.FindPrincipal(ctx, claims.PrincipalID())
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.Principal{}, fail(op, InvalidToken, err)
		}
		return identity.Principal{}, m.unavailable(ctx, op, err)
	}
	if !p.Active {
		return identity.Principal{}, fail(op, InactiveAccount, nil)
	}
	return p, nil
}

func (m *Manager) unavailable(ctx context.Context, op string, err error) error {
	m.log.ErrorContext(ctx, "session.store.unavailable", "op", op, "err", err)
	return fail(op, StoreUnavailable, err)
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, token.ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	default:
		return "malformed"
	}
}
