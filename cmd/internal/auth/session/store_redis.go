package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis.
//
// Each record is a hash at <prefix>:rec:<id>. Secondary keys map the token
// digest and correlation id to the record id, sets index records by principal
// and lineage, and a sorted set scored by expiry (unix micros) drives the
// sweeper. Rotation is an optimistic WATCH/MULTI transaction; a loser that
// hits redis.TxFailedErr re-reads the record, which is then revoked.
//
// Bulk scripts derive keys from the prefix, so the keyspace must live on a
// single node.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

const maxRotateAttempts = 8

// NewRedisStore creates a RedisStore. prefix namespaces every key (default "candidash").
func NewRedisStore(rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	if prefix == "" {
		prefix = "candidash"
	}
	return &RedisStore{rdb: rdb, prefix: prefix + ":"}, nil
}

func (s *RedisStore) recKey(id string) string { return s.prefix + "rec:" + id }
func (s *RedisStore) tokKey(hash string) string { return s.prefix + "tok:" + hash }
func (s *RedisStore) corrKey(id string) string { return s.prefix + "corr:" + id }
func (s *RedisStore) principalKey(id string) string { return s.prefix + "principal:" + id }
func (s *RedisStore) lineageKey(id string) string { return s.prefix + "lineage:" + id }
func (s *RedisStore) expiryKey() string { return s.prefix + "exp" }

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, in NewRecord) (RefreshRecord, error) {
	rec, err := buildRecord(in)
	if err != nil {
		return RefreshRecord{}, err
	}

	for attempt := 0; attempt < maxRotateAttempts; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			if err := s.ensureUnique(ctx, tx, rec); err != nil {
				return err
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.writeRecord(ctx, pipe, rec)
				return nil
			})
			return err
		}, s.tokKey(rec.TokenHash), s.corrKey(rec.CorrelationID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return RefreshRecord{}, err
		}
		return rec, nil
	}
	return RefreshRecord{}, ErrStoreContention
}

// FindByToken implements Store.
func (s *RedisStore) FindByToken(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	id, err := s.rdb.Get(ctx, s.tokKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return RefreshRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	return s.load(ctx, s.rdb, id)
}

const revokeOneScript = `
if redis.call("HGET", KEYS[1], "revoked") == "0" then
  redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])
  return 1
end
return 0
`

var revokeOneLua = redis.NewScript(revokeOneScript)

// Revoke implements Store.
func (s *RedisStore) Revoke(ctx context.Context, now time.Time, id string) error {
	return revokeOneLua.Run(ctx, s.rdb, []string{s.recKey(id)}, micros(now)).Err()
}

const revokeSetScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  if redis.call("HGET", key, "revoked") == "0" then
    redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[1])
    n = n + 1
  end
end
return n
`

var revokeSetLua = redis.NewScript(revokeSetScript)

// RevokeAllFor implements Store.
func (s *RedisStore) RevokeAllFor(ctx context.Context, now time.Time, principalID string) (int64, error) {
	return revokeSetLua.Run(ctx, s.rdb, []string{s.principalKey(principalID)}, micros(now), s.prefix+"rec:").Int64()
}

// RevokeLineage implements Store.
func (s *RedisStore) RevokeLineage(ctx context.Context, now time.Time, lineageID string) (int64, error) {
	return revokeSetLua.Run(ctx, s.rdb, []string{s.lineageKey(lineageID)}, micros(now), s.prefix+"rec:").Int64()
}

const deleteExpiredScript = `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. "rec:" .. id
  local f = redis.call("HMGET", key, "token_hash", "principal_id", "lineage_id", "correlation_id")
  if f[1] then
    redis.call("DEL", key, ARGV[2] .. "tok:" .. f[1], ARGV[2] .. "corr:" .. f[4])
    redis.call("SREM", ARGV[2] .. "principal:" .. f[2], id)
    redis.call("SREM", ARGV[2] .. "lineage:" .. f[3], id)
    n = n + 1
  end
  redis.call("ZREM", KEYS[1], id)
end
return n
`

var deleteExpiredLua = redis.NewScript(deleteExpiredScript)

// DeleteExpiredBefore implements Store.
func (s *RedisStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteExpiredLua.Run(ctx, s.rdb, []string{s.expiryKey()}, micros(cutoff), s.prefix).Int64()
}

// Rotate implements Store.
func (s *RedisStore) Rotate(ctx context.Context, now time.Time, tokenHash string, fn RotateFunc) (RefreshRecord, error) {
	tokKey := s.tokKey(tokenHash)

	for attempt := 0; attempt < maxRotateAttempts; attempt++ {
		var out RefreshRecord

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			id, err := tx.Get(ctx, tokKey).Result()
			if errors.Is(err, redis.Nil) {
				return ErrRecordNotFound
			}
			if err != nil {
				return err
			}
			if err := tx.Watch(ctx, s.recKey(id)).Err(); err != nil {
				return err
			}

			cur, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			if cur.Revoked {
				return ErrRecordRevoked
			}
			succ, err := buildRecord(next)
			if err != nil {
				return err
			}
			if err := s.ensureUnique(ctx, tx, succ); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, s.recKey(cur.ID), "revoked", "1", "revoked_at", micros(now))
				s.writeRecord(ctx, pipe, succ)
				return nil
			})
			if err != nil {
				return err
			}
			out = succ
			return nil
		}, tokKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return RefreshRecord{}, err
		}
		return out, nil
	}
	return RefreshRecord{}, ErrStoreContention
}

func (s *RedisStore) ensureUnique(ctx context.Context, c redis.Cmdable, rec RefreshRecord) error {
	n, err := c.Exists(ctx, s.tokKey(rec.TokenHash), s.corrKey(rec.CorrelationID)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return errDuplicateToken
	}
	return nil
}

func (s *RedisStore) writeRecord(ctx context.Context, pipe redis.Pipeliner, rec RefreshRecord) {
	pipe.HSet(ctx, s.recKey(rec.ID),
		"token_hash", rec.TokenHash,
		"principal_id", rec.PrincipalID,
		"lineage_id", rec.LineageID,
		"correlation_id", rec.CorrelationID,
		"expires_at", micros(rec.ExpiresAt),
		"created_at", micros(rec.CreatedAt),
		"revoked", "0",
		"revoked_at", "",
	)
	pipe.Set(ctx, s.tokKey(rec.TokenHash), rec.ID, 0)
	pipe.Set(ctx, s.corrKey(rec.CorrelationID), rec.ID, 0)
	pipe.SAdd(ctx, s.principalKey(rec.PrincipalID), rec.ID)
	pipe.SAdd(ctx, s.lineageKey(rec.LineageID), rec.ID)
	pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(rec.ExpiresAt.UnixMicro()), Member: rec.ID})
}

func (s *RedisStore) load(ctx context.Context, c redis.Cmdable, id string) (RefreshRecord, error) {
	m, err := c.HGetAll(ctx, s.recKey(id)).Result()
	if err != nil {
		return RefreshRecord{}, err
	}
	if len(m) == 0 {
		return RefreshRecord{}, ErrRecordNotFound
	}

	r := RefreshRecord{
		ID:            id,
		TokenHash:     m["token_hash"],
		PrincipalID:   m["principal_id"],
		LineageID:     m["lineage_id"],
		CorrelationID: m["correlation_id"],
		Revoked:       m["revoked"] == "1",
	}
	if r.ExpiresAt, err = parseMicros(m["expires_at"]); err != nil {
		return RefreshRecord{}, fmt.Errorf("session: record %s: expires_at: %w", id, err)
	}
	if r.CreatedAt, err = parseMicros(m["created_at"]); err != nil {
		return RefreshRecord{}, fmt.Errorf("session: record %s: created_at: %w", id, err)
	}
	if r.Revoked {
		at, err := parseMicros(m["revoked_at"])
		if err != nil {
			return RefreshRecord{}, fmt.Errorf("session: record %s: revoked_at: %w", id, err)
		}
		r.RevokedAt = &at
	}
	return r, nil
}

func micros(t time.Time) string { return strconv.FormatInt(t.UnixMicro(), 10) }

func parseMicros(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n).UTC(), nil
}
