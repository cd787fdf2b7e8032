package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// SecretEnvKey holds the signing secret inline.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "CANDIDASH_SIGNING_SECRET"
	// SecretFileEnvKey points at a file holding the signing secret.
	SecretFileEnvKey = "CANDIDASH_SIGNING_SECRET_FILE"
)

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HashToken returns the 64-char digest stores persist in place of a refresh credential.
func (c *Codec) HashToken(raw string) string {
	return HashHMACSHA256Hex(strings.TrimSpace(raw), c.digestKey)
}

// SecretFromEnv loads the signing secret once at startup.
// The file variant wins when both are set.
func SecretFromEnv() ([]byte, error) {
	return LoadSecret(os.Getenv(SecretEnvKey), os.Getenv(SecretFileEnvKey))
}

// LoadSecret resolves the signing secret from an inline value or a file path
// and enforces MinSecretBytes.
func LoadSecret(inline, path string) ([]byte, error) {
	raw := strings.TrimSpace(inline)
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p) // #nosec G304 -- operator-supplied path.
		if err != nil {
			return nil, fmt.Errorf("read signing secret: %w", err)
		}
		raw = strings.TrimSpace(string(b))
	}
	if raw == "" {
		return nil, ErrSecretMissing
	}
	if len(raw) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	return []byte(raw), nil
}
