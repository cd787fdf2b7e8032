package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/session"
)

// readyCheck reports whether one dependency can serve traffic.
type readyCheck func(ctx context.Context) error

// backends owns the persistence handles selected by Config.Store.
// The principal directory lives in Postgres whenever a database is
// configured and in memory otherwise.
type backends struct {
	store     session.Store
	directory identity.Directory

	pool *pgxpool.Pool
	rdb  *redis.Client

	checks map[string]readyCheck
}

func openBackends(ctx context.Context, cfg Config, log Logger, hasher identity.PasswordHasher) (*backends, error) {
	b := &backends{checks: make(map[string]readyCheck)}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b.pool = pool
		b.checks["postgres"] = func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) }

		dir, err := identity.NewPostgresDirectory(pool, hasher, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.directory = dir
	} else {
		b.directory = identity.NewMemoryDirectory(hasher)
	}

	switch cfg.Store {
	case StorePostgres:
		st, err := session.NewPostgresStore(b.pool, session.WithSchema(cfg.DBSchema))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = st

	case StoreRedis:
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := b.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st, err := session.NewRedisStore(b.rdb, cfg.RedisPrefix)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = st
		b.checks["redis"] = st.Ping

	default:
		b.store = session.NewMemoryStore()
	}

	log.Info("store.selected",
		"store", cfg.Store,
		"directory_persistent", b.pool != nil,
	)
	return b, nil
}

// persistent reports whether refresh records survive a restart.
func (b *backends) persistent() bool { return b.pool != nil || b.rdb != nil }

func (b *backends) Close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
