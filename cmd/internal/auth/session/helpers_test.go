package session

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"candidash/cmd/identity"
	"candidash/cmd/security/password"
	"candidash/cmd/security/token"
)

var testEpoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const testPassword = "correct horse battery staple"

type harness struct {
	mgr     *Manager
	store   Store
	codec   *token.Codec
	dir     *identity.MemoryDirectory
	clock   *ManualClock
	metrics *Metrics
	logs    *bytes.Buffer

	principal identity.Principal
}

type harnessOption func(*Config)

func withCascade() harnessOption { return func(c *Config) { c.ReuseRevokesLineage = true } }

func newHarness(t *testing.T, store Store, opts ...harnessOption) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ClockSkew = 0
	for _, o := range opts {
		o(&cfg)
	}

	codec, err := token.New(token.Options{
		Secret: []byte(strings.Repeat("s", 32)),
		Issuer: cfg.Issuer,
		Leeway: cfg.ClockSkew,
	})
	require.NoError(t, err)

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1
	pwCfg.Params.Parallelism = 1
	verifier, err := identity.NewArgon2idVerifier(pwCfg)
	require.NoError(t, err)

	dir := identity.NewMemoryDirectory(verifier)
	p, err := dir.CreatePrincipal(context.Background(), identity.CreatePrincipalInput{
		Email:    "ada@example.com",
		Password: testPassword,
		Now:      testEpoch,
	})
	require.NoError(t, err)

	clock := NewManualClock(testEpoch)
	metrics := NewMetrics(prometheus.NewRegistry())
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mgr, err := NewManager(cfg, store, codec, dir, verifier,
		WithClock(clock),
		WithLogger(logger),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	return &harness{
		mgr:       mgr,
		store:     store,
		codec:     codec,
		dir:       dir,
		clock:     clock,
		metrics:   metrics,
		logs:      logs,
		principal: p,
	}
}

func (h *harness) login(t *testing.T) TokenPair {
	t.Helper()
	pair, err := h.mgr.Login(context.Background(), "ada@example.com", testPassword)
	require.NoError(t, err)
	return pair
}

func (h *harness) addPrincipal(t *testing.T, email string) identity.Principal {
	t.Helper()
	p, err := h.dir.CreatePrincipal(context.Background(), identity.CreatePrincipalInput{
		Email:    email,
		Password: testPassword,
		Now:      h.clock.Now(),
	})
	require.NoError(t, err)
	return p
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := NewRedisStore(rdb, "test")
	require.NoError(t, err)
	return s, mr
}

// storeBackends lists every Store that runs without external services.
func storeBackends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newMiniredisStore(t)
			return s
		},
	}
}
