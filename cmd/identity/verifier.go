package identity

import (
	"candidash/cmd/security/password"
)

// PasswordHasher produces stored password hashes.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Argon2idVerifier verifies and produces Argon2id password hashes.
type Argon2idVerifier struct {
	cfg       password.Config
	dummyHash string
}

// NewArgon2idVerifier builds a verifier and precomputes the hash used to
// equalize timing for unknown identifiers.
func NewArgon2idVerifier(cfg password.Config) (*Argon2idVerifier, error) {
	dummyCfg := cfg
	dummyCfg.Policy = password.Policy{MinLength: 1, MaxLength: 1024}
	dummy, err := dummyCfg.Hash("candidash-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Argon2idVerifier{cfg: cfg, dummyHash: dummy}, nil
}

// Verify reports whether plain matches hash. Malformed hashes never match.
func (v *Argon2idVerifier) Verify(plain, hash string) bool {
	ok, err := v.cfg.Verify(hash, plain)
	return err == nil && ok
}

// Hash applies the password policy and hashes plain.
func (v *Argon2idVerifier) Hash(plain string) (string, error) {
	return v.cfg.Hash(plain)
}

// Burn runs one verification against a throwaway hash so a lookup miss costs
// the same as a wrong password.
func (v *Argon2idVerifier) Burn(plain string) {
	_, _ = v.cfg.Verify(v.dummyHash, plain)
}
