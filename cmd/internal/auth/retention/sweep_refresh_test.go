package retention

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/session"
	"candidash/cmd/security/password"
	"candidash/cmd/security/token"
)

const sweptPassword = "correct horse battery staple"

func newSweptManager(t *testing.T, store session.Store, clock *session.ManualClock) *session.Manager {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.ClockSkew = 0
	codec, err := token.New(token.Options{Secret: []byte(strings.Repeat("r", 32)), Issuer: cfg.Issuer})
	require.NoError(t, err)

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1
	pwCfg.Params.Parallelism = 1
	verifier, err := identity.NewArgon2idVerifier(pwCfg)
	require.NoError(t, err)

	dir := identity.NewMemoryDirectory(verifier)
	_, err = dir.CreatePrincipal(context.Background(), identity.CreatePrincipalInput{
		Email:    "ada@example.com",
		Password: sweptPassword,
		Now:      clock.Now(),
	})
	require.NoError(t, err)

	mgr, err := session.NewManager(cfg, store, codec, dir, verifier, session.WithClock(clock))
	require.NoError(t, err)
	return mgr
}

func TestSweepOnce_SweptCredentialIsInvalid(t *testing.T) {
	backends := map[string]func(t *testing.T) session.Store{
		"memory": func(t *testing.T) session.Store { return session.NewMemoryStore() },
		"redis": func(t *testing.T) session.Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			s, err := session.NewRedisStore(rdb, "sweep")
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			clock := session.NewManualClock(epoch)
			mgr := newSweptManager(t, store, clock)

			pair, err := mgr.Login(ctx, "ada@example.com", sweptPassword)
			require.NoError(t, err)

			sw, err := New(store, DefaultConfig(), WithClock(clock))
			require.NoError(t, err)

			// Expired but inside the retention window: kept, reported as expired.
			clock.Set(pair.RefreshExpiresAt.Add(24 * time.Hour))
			n, err := sw.SweepOnce(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 0, n)

			_, err = mgr.Refresh(ctx, pair.RefreshToken)
			assert.Equal(t, session.ExpiredToken, session.KindOf(err))

			clock.Set(pair.RefreshExpiresAt.Add(DefaultConfig().Window + time.Second))
			n, err = sw.SweepOnce(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			_, err = mgr.Refresh(ctx, pair.RefreshToken)
			require.Error(t, err)
			assert.Equal(t, session.InvalidToken, session.KindOf(err))
		})
	}
}
