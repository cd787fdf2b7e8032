package identity

import (
	"context"
	"strings"
	"time"
)

// Principal is the security subject a session belongs to.
type Principal struct {
	ID        string
	Email     string
	FirstName *string
	LastName  *string
	Active    bool
	CreatedAt time.Time
}

// PrincipalAuth is a Principal together with its stored password hash.
// It never leaves the login path.
type PrincipalAuth struct {
	Principal
	PasswordHash string
}

// CreatePrincipalInput registers a new principal. Password is plaintext and is
// hashed by the directory before it is persisted.
type CreatePrincipalInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
	Now       time.Time
}

// Directory is the read side consumed by the session manager plus the
// registration write used by the HTTP layer.
type Directory interface {
	// FindByIdentifier resolves a login identifier (email, any case).
	FindByIdentifier(ctx context.Context, identifier string) (PrincipalAuth, error)
	// FindPrincipal resolves a principal by id.
	FindPrincipal(ctx context.Context, id string) (Principal, error)
	// CreatePrincipal registers a principal; ConflictError{Field: "email"} on duplicates.
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error)
}

func validateCreate(op string, in CreatePrincipalInput) (string, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "valid email is required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}
	return email, nil
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
