package token

import (
	"errors"
	"fmt"
)

// Public, stable errors for callers.
var (
	ErrSecretMissing  = errors.New("signing secret missing")
	ErrSecretTooShort = errors.New("signing secret too short")
	ErrInvalidClaims  = errors.New("invalid claims")

	// Decode failure reasons. Every *DecodeError unwraps to exactly one of these.
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrWrongKind        = errors.New("token kind mismatch")
)

// DecodeError reports why a presented credential was rejected.
// Reason is one of ErrMalformed, ErrSignatureInvalid, ErrExpired, ErrWrongKind.
type DecodeError struct {
	Reason error
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode: " + e.Reason.Error()
	}
	return fmt.Sprintf("decode: %v: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

func decodeErr(reason, cause error) *DecodeError {
	return &DecodeError{Reason: reason, Err: cause}
}
