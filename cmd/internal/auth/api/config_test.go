package authapi

import (
	"errors"
	"net/http"
	"testing"

	"candidash/cmd/internal/auth/session"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if !cfg.CookieSecure || cfg.CookieSameSite != http.SameSiteStrictMode {
		t.Fatalf("defaults must be secure+strict, got %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("CANDIDASH_AUTH_COOKIE_NAME", "rt")
	t.Setenv("CANDIDASH_AUTH_COOKIE_PATH", "/auth")
	t.Setenv("CANDIDASH_AUTH_COOKIE_SECURE", "false")
	t.Setenv("CANDIDASH_AUTH_COOKIE_SAMESITE", "Lax")
	t.Setenv("CANDIDASH_AUTH_MAX_BODY_BYTES", "4096")

	cfg, err := LoadConfigFromEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RefreshCookieName != "rt" || cfg.CookiePath != "/auth" {
		t.Fatalf("cookie name/path not applied: %+v", cfg)
	}
	if cfg.CookieSecure {
		t.Fatalf("expected secure=false")
	}
	if cfg.CookieSameSite != http.SameSiteLaxMode {
		t.Fatalf("expected lax, got %v", cfg.CookieSameSite)
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("max body bytes mismatch: %d", cfg.MaxBodyBytes)
	}
}

func TestLoadConfigFromEnv_Rejects(t *testing.T) {
	for _, tc := range []struct{ key, val string }{
		{"CANDIDASH_AUTH_COOKIE_SAMESITE", "none"},
		{"CANDIDASH_AUTH_COOKIE_SECURE", "sometimes"},
		{"CANDIDASH_AUTH_MAX_BODY_BYTES", "-1"},
		{"CANDIDASH_AUTH_COOKIE_PATH", "relative"},
	} {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfigFromEnv(DefaultConfig()); !errors.Is(err, session.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
