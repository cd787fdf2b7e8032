package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidash/cmd/security/token"
)

const appTestPassword = "correct horse battery staple"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Store = StoreMemory
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.SigningSecret = strings.Repeat("x", 32)
	cfg.Password.Params.MemoryKiB = 8 * 1024
	cfg.Password.Params.Iterations = 1
	cfg.Password.Params.Parallelism = 1
	return cfg
}

func discardLogger() Logger { return slog.New(slog.DiscardHandler) }

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(a *App, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func TestApp_EndToEnd(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodPost, "/api/v1/auth/register",
		`{"email":"ada@example.com","password":"`+appTestPassword+`","confirm_password":"`+appTestPassword+`"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = serve(a, http.MethodPost, "/api/v1/auth/login",
		`{"email":"ada@example.com","password":"`+appTestPassword+`"}`,
		map[string]string{"Origin": "http://localhost:5173"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))

	rr = serve(a, http.MethodGet, "/api/v1/users/me", "", map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"email":"ada@example.com"`)

	rr = serve(a, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `candidash_session_operations_total{op="login",result="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_HealthAndReadiness(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(a, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	strict := newTestApp(t, cfg)
	rr = serve(strict, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestApp_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Store = StoreRedis
	cfg.RedisAddr = mr.Addr()
	a := newTestApp(t, cfg)

	rr := serve(a, http.MethodPost, "/api/v1/auth/register",
		`{"email":"ada@example.com","password":"`+appTestPassword+`","confirm_password":"`+appTestPassword+`"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = serve(a, http.MethodPost, "/api/v1/auth/login",
		`{"email":"ada@example.com","password":"`+appTestPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, cfg.RedisPrefix), "key %q outside prefix", k)
	}

	rr = serve(a, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	mr.Close()
	rr = serve(a, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNew_RequiresSigningSecret(t *testing.T) {
	cfg := testConfig()
	cfg.SigningSecret = ""
	_, err := New(context.Background(), cfg, discardLogger())
	require.ErrorIs(t, err, token.ErrSecretMissing)

	cfg.SigningSecret = "short"
	_, err = New(context.Background(), cfg, discardLogger())
	require.ErrorIs(t, err, token.ErrSecretTooShort)
}

func TestNew_UnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Store = StoreRedis
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg, discardLogger())
	require.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweep_OneShot(t *testing.T) {
	n, err := Sweep(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Zero(t, n)
}
