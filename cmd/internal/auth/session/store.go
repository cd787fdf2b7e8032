package session

import (
	"context"
	"time"
)

// RefreshRecord is the persisted state of one issued refresh credential.
//
// Revoked is never undone and RevokedAt is non-nil exactly when Revoked is true.
type RefreshRecord struct {
	ID            string
	TokenHash     string
	PrincipalID   string
	LineageID     string
	CorrelationID string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	Revoked       bool
	RevokedAt     *time.Time
}

// Usable reports whether the record may still be rotated at now.
func (r RefreshRecord) Usable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// NewRecord describes a record to insert. An empty LineageID starts a new
// lineage keyed by the record's own ID.
type NewRecord struct {
	TokenHash     string
	PrincipalID   string
	LineageID     string
	CorrelationID string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// RotateFunc receives the locked record and returns its successor. Returning
// an error aborts the rotation; the error is handed back by Rotate unchanged.
type RotateFunc func(current RefreshRecord) (NewRecord, error)

// Store persists refresh records.
//
// All methods are safe for concurrent use. Bulk operations are single
// statements (or single scripts) and return the number of affected records.
type Store interface {
	// Create inserts a record.
	Create(ctx context.Context, rec NewRecord) (RefreshRecord, error)

	// FindByToken loads a record by token digest; ErrRecordNotFound if absent.
	FindByToken(ctx context.Context, tokenHash string) (RefreshRecord, error)

	// Revoke marks one record revoked. Revoking a revoked or missing record is a no-op.
	Revoke(ctx context.Context, now time.Time, id string) error

	// RevokeAllFor revokes every unrevoked record of a principal.
	RevokeAllFor(ctx context.Context, now time.Time, principalID string) (int64, error)

	// RevokeLineage revokes every unrevoked record of a lineage.
	RevokeLineage(ctx context.Context, now time.Time, lineageID string) (int64, error)

	// DeleteExpiredBefore deletes records with expires_at < cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Rotate locks the record matching tokenHash, passes it to fn, then
	// revokes it and inserts fn's successor as one atomic unit. Concurrent
	// rotations of the same record are serialized so only one observes it
	// unrevoked.
	Rotate(ctx context.Context, now time.Time, tokenHash string, fn RotateFunc) (RefreshRecord, error)
}

// Pinger is implemented by stores whose backend can be health checked.
type Pinger interface {
	Ping(ctx context.Context) error
}
