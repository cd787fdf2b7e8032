package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls credential lifetimes and the reuse policy.
type Config struct {
	// Issuer is set as "iss" on every credential and required on decode.
	Issuer string

	// AccessTTL is the lifetime of access credentials.
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh credentials and their records.
	// It is also the Max-Age of the refresh cookie.
	RefreshTTL time.Duration

	// ClockSkew is the leeway applied to exp/iat checks on decode.
	ClockSkew time.Duration

	// ReuseRevokesLineage revokes every record of a lineage when one of its
	// already rotated credentials is presented again. A client that
	// double-submits one refresh loses the winner's successor too, so the
	// whole session ends and the user must log in again.
	ReuseRevokesLineage bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:     "candidash",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// Validate reports ErrConfig when the lifetimes are unusable.
func (c Config) Validate() error {
	switch {
	case c.AccessTTL <= 0, c.RefreshTTL <= 0:
		return ErrConfig
	case c.AccessTTL >= c.RefreshTTL:
		return ErrConfig
	case c.ClockSkew < 0 || c.ClockSkew >= c.AccessTTL:
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv applies environment overrides to base.
//
// Optional (durations must be valid Go duration strings):
//   - CANDIDASH_AUTH_ISSUER
//   - CANDIDASH_AUTH_ACCESS_TTL
//   - CANDIDASH_AUTH_REFRESH_TTL
//   - CANDIDASH_AUTH_CLOCK_SKEW
//   - CANDIDASH_AUTH_REUSE_REVOKES_LINEAGE
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := strings.TrimSpace(os.Getenv("CANDIDASH_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{"CANDIDASH_AUTH_ACCESS_TTL", &cfg.AccessTTL, false},
		{"CANDIDASH_AUTH_REFRESH_TTL", &cfg.RefreshTTL, false},
		{"CANDIDASH_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	}
	for _, f := range durations {
		v := strings.TrimSpace(os.Getenv(f.key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || (d == 0 && !f.allowZero) {
			return Config{}, ErrConfig
		}
		*f.dst = d
	}

	if v := strings.TrimSpace(os.Getenv("CANDIDASH_AUTH_REUSE_REVOKES_LINEAGE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.ReuseRevokesLineage = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
