package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the refresh_tokens table.
//
// The pgx pool is owned by the caller and never closed here. Rotation runs in
// one READ COMMITTED transaction that locks the presented row with
// SELECT ... FOR UPDATE, so a concurrent rotation of the same row waits and
// then observes it revoked.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding refresh_tokens (default "candidash").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, schema: "candidash"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return s, nil
}

const recordColumns = `id, token_hash, principal_id, lineage_id, correlation_id, expires_at, created_at, revoked, revoked_at`

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_tokens"}.Sanitize()
}

// Ping implements Pinger.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, in NewRecord) (RefreshRecord, error) {
	rec, err := buildRecord(in)
	if err != nil {
		return RefreshRecord{}, err
	}
	if err := insertRecord(ctx, s.pool, s.table(), rec); err != nil {
		return RefreshRecord{}, err
	}
	return rec, nil
}

// FindByToken implements Store.
func (s *PostgresStore) FindByToken(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	return scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM `+s.table()+` WHERE token_hash = $1`,
		tokenHash,
	))
}

// Revoke implements Store.
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		id, now,
	)
	return err
}

// RevokeAllFor implements Store.
func (s *PostgresStore) RevokeAllFor(ctx context.Context, now time.Time, principalID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked = TRUE, revoked_at = $2 WHERE principal_id = $1 AND revoked = FALSE`,
		principalID, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RevokeLineage implements Store.
func (s *PostgresStore) RevokeLineage(ctx context.Context, now time.Time, lineageID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked = TRUE, revoked_at = $2 WHERE lineage_id = $1 AND revoked = FALSE`,
		lineageID, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredBefore implements Store.
func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Rotate implements Store.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, tokenHash string, fn RotateFunc) (RefreshRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return RefreshRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM `+s.table()+` WHERE token_hash = $1 FOR UPDATE`,
		tokenHash,
	))
	if err != nil {
		return RefreshRecord{}, err
	}

	next, err := fn(cur)
	if err != nil {
		return RefreshRecord{}, err
	}
	succ, err := buildRecord(next)
	if err != nil {
		return RefreshRecord{}, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		cur.ID, now,
	)
	if err != nil {
		return RefreshRecord{}, err
	}
	if tag.RowsAffected() != 1 {
		return RefreshRecord{}, ErrRecordRevoked
	}

	if err := insertRecord(ctx, tx, s.table(), succ); err != nil {
		return RefreshRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RefreshRecord{}, err
	}
	return succ, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRecord(ctx context.Context, db execer, table string, rec RefreshRecord) error {
	_, err := db.Exec(ctx,
		`INSERT INTO `+table+` (
		     id, token_hash, principal_id, lineage_id, correlation_id, expires_at, created_at, revoked, revoked_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NULL)`,
		rec.ID, rec.TokenHash, rec.PrincipalID, rec.LineageID, rec.CorrelationID, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", errDuplicateToken, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

func scanRecord(row pgx.Row) (RefreshRecord, error) {
	var r RefreshRecord
	err := row.Scan(
		&r.ID,
		&r.TokenHash,
		&r.PrincipalID,
		&r.LineageID,
		&r.CorrelationID,
		&r.ExpiresAt,
		&r.CreatedAt,
		&r.Revoked,
		&r.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	return r, nil
}
