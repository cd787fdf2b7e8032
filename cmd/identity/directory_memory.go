package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"candidash/cmd/identity/ids"
)

// MemoryDirectory is an in-process Directory for dev mode and tests.
type MemoryDirectory struct {
	hasher PasswordHasher

	mu      sync.RWMutex
	byID    map[string]PrincipalAuth
	byEmail map[string]string
}

// NewMemoryDirectory returns an empty directory that hashes with hasher.
func NewMemoryDirectory(hasher PasswordHasher) *MemoryDirectory {
	return &MemoryDirectory{
		hasher:  hasher,
		byID:    make(map[string]PrincipalAuth),
		byEmail: make(map[string]string),
	}
}

// CreatePrincipal implements Directory.
func (d *MemoryDirectory) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
	const op = "identity.CreatePrincipal"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	email, err := validateCreate(op, in)
	if err != nil {
		return Principal{}, err
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Principal{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byEmail[email]; taken {
		return Principal{}, ConflictError{Op: op, Field: "email"}
	}
	p := Principal{
		ID:        id,
		Email:     strings.TrimSpace(in.Email),
		FirstName: trimPtr(in.FirstName),
		LastName:  trimPtr(in.LastName),
		Active:    true,
		CreatedAt: now,
	}
	d.byID[id] = PrincipalAuth{Principal: p, PasswordHash: hash}
	d.byEmail[email] = id
	return p, nil
}

// SetActive flips the active flag of an existing principal.
func (d *MemoryDirectory) SetActive(_ context.Context, id string, active bool, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pa, ok := d.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.SetActive", Resource: "principal"}
	}
	pa.Active = active
	d.byID[id] = pa
	return nil
}

// FindByIdentifier implements Directory.
func (d *MemoryDirectory) FindByIdentifier(ctx context.Context, identifier string) (PrincipalAuth, error) {
	if err := ctx.Err(); err != nil {
		return PrincipalAuth{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[NormalizeEmail(identifier)]
	if !ok {
		return PrincipalAuth{}, NotFoundError{Op: "identity.FindByIdentifier", Resource: "principal"}
	}
	return d.byID[id], nil
}

// FindPrincipal implements Directory.
func (d *MemoryDirectory) FindPrincipal(ctx context.Context, id string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	pa, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return Principal{}, NotFoundError{Op: "identity.FindPrincipal", Resource: "principal"}
	}
	return pa.Principal, nil
}
