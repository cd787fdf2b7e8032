package session

import (
	"context"
	"sync"
	"time"

	"candidash/cmd/identity/ids"
)

// MemoryStore is a mutex-guarded Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*RefreshRecord
	byHash map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*RefreshRecord),
		byHash: make(map[string]string),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, in NewRecord) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(in)
}

func (s *MemoryStore) insertLocked(in NewRecord) (RefreshRecord, error) {
	rec, err := buildRecord(in)
	if err != nil {
		return RefreshRecord{}, err
	}
	if _, dup := s.byHash[rec.TokenHash]; dup {
		return RefreshRecord{}, errDuplicateToken
	}
	for _, r := range s.byID {
		if r.CorrelationID == rec.CorrelationID {
			return RefreshRecord{}, errDuplicateToken
		}
	}

	stored := rec
	s.byID[rec.ID] = &stored
	s.byHash[rec.TokenHash] = rec.ID
	return rec, nil
}

// FindByToken implements Store.
func (s *MemoryStore) FindByToken(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return RefreshRecord{}, ErrRecordNotFound
	}
	return copyRecord(s.byID[id]), nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byID[id]; ok {
		revokeLocked(r, now)
	}
	return nil
}

// RevokeAllFor implements Store.
func (s *MemoryStore) RevokeAllFor(ctx context.Context, now time.Time, principalID string) (int64, error) {
	return s.revokeWhere(ctx, now, func(r *RefreshRecord) bool { return r.PrincipalID == principalID })
}

// RevokeLineage implements Store.
func (s *MemoryStore) RevokeLineage(ctx context.Context, now time.Time, lineageID string) (int64, error) {
	return s.revokeWhere(ctx, now, func(r *RefreshRecord) bool { return r.LineageID == lineageID })
}

func (s *MemoryStore) revokeWhere(ctx context.Context, now time.Time, match func(*RefreshRecord) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.byID {
		if match(r) && revokeLocked(r, now) {
			n++
		}
	}
	return n, nil
}

// DeleteExpiredBefore implements Store.
func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.byID {
		if r.ExpiresAt.Before(cutoff) {
			delete(s.byHash, r.TokenHash)
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

// Rotate implements Store.
func (s *MemoryStore) Rotate(ctx context.Context, now time.Time, tokenHash string, fn RotateFunc) (RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return RefreshRecord{}, ErrRecordNotFound
	}
	cur := s.byID[id]

	next, err := fn(copyRecord(cur))
	if err != nil {
		return RefreshRecord{}, err
	}
	if cur.Revoked {
		return RefreshRecord{}, ErrRecordRevoked
	}

	succ, err := s.insertLocked(next)
	if err != nil {
		return RefreshRecord{}, err
	}
	revokeLocked(cur, now)
	return succ, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func revokeLocked(r *RefreshRecord, now time.Time) bool {
	if r.Revoked {
		return false
	}
	at := now
	r.Revoked = true
	r.RevokedAt = &at
	return true
}

func copyRecord(r *RefreshRecord) RefreshRecord {
	out := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		out.RevokedAt = &at
	}
	return out
}

// buildRecord validates in and assigns the record and lineage ids.
func buildRecord(in NewRecord) (RefreshRecord, error) {
	switch {
	case in.TokenHash == "", in.PrincipalID == "", in.CorrelationID == "":
		return RefreshRecord{}, errIncompleteRecord
	case in.CreatedAt.IsZero(), !in.ExpiresAt.After(in.CreatedAt):
		return RefreshRecord{}, errIncompleteRecord
	}

	id, err := ids.NewULID(in.CreatedAt)
	if err != nil {
		return RefreshRecord{}, err
	}
	lineage := in.LineageID
	if lineage == "" {
		lineage = id
	}
	return RefreshRecord{
		ID:            id,
		TokenHash:     in.TokenHash,
		PrincipalID:   in.PrincipalID,
		LineageID:     lineage,
		CorrelationID: in.CorrelationID,
		ExpiresAt:     in.ExpiresAt,
		CreatedAt:     in.CreatedAt,
	}, nil
}
