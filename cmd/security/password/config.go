package password

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted plaintext passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig matches the cost used for existing account hashes
// (64 MiB, 2 passes, 4 lanes, 16-byte salt, 32-byte key).
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  2,
			Parallelism: 4,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv applies CANDIDASH_PASSWORD_* and CANDIDASH_ARGON2_* overrides to DefaultConfig.
//
// Env surface:
//   - CANDIDASH_PASSWORD_MIN_LEN, CANDIDASH_PASSWORD_MAX_LEN
//   - CANDIDASH_PASSWORD_REJECT_VERY_WEAK
//   - CANDIDASH_ARGON2_MEMORY_KIB, CANDIDASH_ARGON2_ITERATIONS, CANDIDASH_ARGON2_PARALLELISM
//   - CANDIDASH_ARGON2_SALT_LEN, CANDIDASH_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		dst      *int
	}{
		{"CANDIDASH_PASSWORD_MIN_LEN", 1, 1024, &cfg.Policy.MinLength},
		{"CANDIDASH_PASSWORD_MAX_LEN", 1, 4096, &cfg.Policy.MaxLength},
	}
	for _, f := range ints {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := parseBounded(v, uint64(f.min), uint64(f.max))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = int(n) // #nosec G115 -- bounded above.
	}

	u32s := []struct {
		key      string
		min, max uint64
		dst      *uint32
	}{
		{"CANDIDASH_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"CANDIDASH_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"CANDIDASH_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"CANDIDASH_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range u32s {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := parseBounded(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = uint32(n) // #nosec G115 -- bounded above.
	}

	if v, ok := os.LookupEnv("CANDIDASH_ARGON2_PARALLELISM"); ok {
		n, err := parseBounded(v, 1, math.MaxUint8)
		if err != nil {
			return Config{}, fmt.Errorf("CANDIDASH_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded above.
	}

	if v, ok := os.LookupEnv("CANDIDASH_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("CANDIDASH_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseBounded(s string, minVal, maxVal uint64) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
