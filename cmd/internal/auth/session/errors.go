package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned by a Store when no record matches.
	ErrRecordNotFound = errors.New("refresh record not found")

	// ErrRecordRevoked is returned by a Store when a guarded revoke finds the
	// record already revoked inside a rotation.
	ErrRecordRevoked = errors.New("refresh record already revoked")

	// ErrStoreContention is returned when an optimistic store gives up after
	// repeated concurrent modification.
	ErrStoreContention = errors.New("refresh store contention")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Kind tags the outcome of a failed Manager operation.
type Kind uint8

const (
	// KindUnknown is never produced by the Manager; KindOf returns it for foreign errors.
	KindUnknown Kind = iota
	// InvalidCredentials: unknown identifier or wrong password.
	InvalidCredentials
	// InactiveAccount: password matched but the principal is disabled.
	InactiveAccount
	// InvalidToken: malformed, forged, wrong kind, or unknown to the store.
	InvalidToken
	// ExpiredToken: a known refresh credential past its expiry.
	ExpiredToken
	// ReusedToken: a refresh credential that was already rotated or revoked.
	ReusedToken
	// StoreUnavailable: persistence failed; the operation had no effect.
	StoreUnavailable
)

var kindNames = [...]string{
	KindUnknown:        "unknown",
	InvalidCredentials: "invalid_credentials",
	InactiveAccount:    "inactive_account",
	InvalidToken:       "invalid_token",
	ExpiredToken:       "expired_token",
	ReusedToken:        "reused_token",
	StoreUnavailable:   "store_unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the only error type returned by Manager operations.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func fail(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

var (
	errIncompleteRecord = errors.New("refresh record incomplete")
	errDuplicateToken   = errors.New("refresh record duplicate token")
)
