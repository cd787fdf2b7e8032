package authapi

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"candidash/cmd/internal/auth/session"
)

// Config controls the HTTP surface of the auth service.
type Config struct {
	MaxBodyBytes int64

	// LoginFailureLimit failed logins per client IP within LoginFailureWindow
	// trigger 429. Zero disables the throttle.
	LoginFailureLimit  int
	LoginFailureWindow time.Duration

	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

// DefaultConfig returns the production cookie contract: HttpOnly is implied,
// Secure and SameSite=Strict are on, and the cookie is only sent to /api/v1/auth.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:       1 << 20, // 1 MiB
		LoginFailureLimit:  20,
		LoginFailureWindow: 5 * time.Minute,
		RefreshCookieName:  "candidash_refresh",
		CookiePath:         "/api/v1/auth",
		CookieSecure:       true,
		CookieSameSite:     http.SameSiteStrictMode,
	}
}

// LoadConfigFromEnv applies CANDIDASH_AUTH_* overrides on top of base.
//
// Env surface:
//   - CANDIDASH_AUTH_MAX_BODY_BYTES
//   - CANDIDASH_AUTH_LOGIN_IP_MAX, CANDIDASH_AUTH_LOGIN_IP_WINDOW
//   - CANDIDASH_AUTH_COOKIE_NAME, CANDIDASH_AUTH_COOKIE_PATH, CANDIDASH_AUTH_COOKIE_DOMAIN
//   - CANDIDASH_AUTH_COOKIE_SECURE
//   - CANDIDASH_AUTH_COOKIE_SAMESITE (strict|lax)
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v, ok := lookup("CANDIDASH_AUTH_MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: CANDIDASH_AUTH_MAX_BODY_BYTES", session.ErrConfig)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup("CANDIDASH_AUTH_LOGIN_IP_MAX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%w: CANDIDASH_AUTH_LOGIN_IP_MAX", session.ErrConfig)
		}
		cfg.LoginFailureLimit = n
	}
	if v, ok := lookup("CANDIDASH_AUTH_LOGIN_IP_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: CANDIDASH_AUTH_LOGIN_IP_WINDOW", session.ErrConfig)
		}
		cfg.LoginFailureWindow = d
	}
	if v, ok := lookup("CANDIDASH_AUTH_COOKIE_NAME"); ok {
		cfg.RefreshCookieName = v
	}
	if v, ok := lookup("CANDIDASH_AUTH_COOKIE_PATH"); ok {
		cfg.CookiePath = v
	}
	if v, ok := lookup("CANDIDASH_AUTH_COOKIE_DOMAIN"); ok {
		cfg.CookieDomain = v
	}
	if v, ok := lookup("CANDIDASH_AUTH_COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: CANDIDASH_AUTH_COOKIE_SECURE", session.ErrConfig)
		}
		cfg.CookieSecure = b
	}
	if v, ok := lookup("CANDIDASH_AUTH_COOKIE_SAMESITE"); ok {
		ss, err := ParseSameSite(v)
		if err != nil {
			return Config{}, err
		}
		cfg.CookieSameSite = ss
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would weaken the cookie contract.
func (c Config) Validate() error {
	switch {
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max body bytes must be positive", session.ErrConfig)
	case c.LoginFailureLimit < 0:
		return fmt.Errorf("%w: login failure limit must not be negative", session.ErrConfig)
	case c.LoginFailureLimit > 0 && c.LoginFailureWindow <= 0:
		return fmt.Errorf("%w: login failure window must be positive", session.ErrConfig)
	case strings.TrimSpace(c.RefreshCookieName) == "":
		return fmt.Errorf("%w: refresh cookie name required", session.ErrConfig)
	case !strings.HasPrefix(c.CookiePath, "/"):
		return fmt.Errorf("%w: cookie path must be absolute", session.ErrConfig)
	case c.CookieSameSite != http.SameSiteStrictMode && c.CookieSameSite != http.SameSiteLaxMode:
		return fmt.Errorf("%w: cookie samesite must be strict or lax", session.ErrConfig)
	}
	return nil
}

// ParseSameSite accepts "strict" or "lax".
func ParseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	default:
		return 0, fmt.Errorf("%w: CANDIDASH_AUTH_COOKIE_SAMESITE must be strict or lax", session.ErrConfig)
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
