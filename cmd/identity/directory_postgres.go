package identity

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

	"candidash/cmd/identity/ids"
)

// PostgresDirectory implements Directory over the users table.
//
// The pgx pool is owned by the caller and never closed here.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
	hasher PasswordHasher
}

// PostgresOption configures a PostgresDirectory.
type PostgresOption func(*PostgresDirectory) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema the migrations create tables in.
const DefaultSchema = "candidash"

// WithSchema sets the schema holding the users table (default "candidash").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if !ValidSchemaName(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		d.schema = schema
		return nil
	}
}

// ValidSchemaName reports whether s is a plain, unquoted Postgres identifier.
func ValidSchemaName(s string) bool { return pgIdentRe.MatchString(s) }

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, hasher PasswordHasher, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{pool: pool, schema: DefaultSchema, hasher: hasher}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	if d.hasher == nil {
		return nil, fmt.Errorf("identity: nil password hasher")
	}
	return d, nil
}

const principalColumns = `id, email, first_name, last_name, is_active, created_at`

// CreatePrincipal implements Directory.
func (d *PostgresDirectory) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
	const op = "identity.CreatePrincipal"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	emailNorm, err := validateCreate(op, in)
	if err != nil {
		return Principal{}, err
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return Principal{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:        id,
		Email:     strings.TrimSpace(in.Email),
		FirstName: trimPtr(in.FirstName),
		LastName:  trimPtr(in.LastName),
		Active:    true,
		CreatedAt: now,
	}

	_, err = d.pool.Exec(ctx,
		`INSERT INTO `+d.table()+` (
		     id, email, email_norm, password_hash, first_name, last_name, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)`,
		p.ID, p.Email, emailNorm, hash, p.FirstName, p.LastName, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Principal{}, ConflictError{Op: op, Field: "email"}
		}
		return Principal{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FindByIdentifier implements Directory.
func (d *PostgresDirectory) FindByIdentifier(ctx context.Context, identifier string) (PrincipalAuth, error) {
	const op = "identity.FindByIdentifier"

	email := NormalizeEmail(identifier)
	if email == "" {
		return PrincipalAuth{}, NotFoundError{Op: op, Resource: "principal"}
	}

	var out PrincipalAuth
	err := d.pool.QueryRow(ctx,
		`SELECT `+principalColumns+`, password_hash FROM `+d.table()+` WHERE email_norm = $1`,
		email,
	).Scan(
		&out.ID, &out.Email, &out.FirstName, &out.LastName, &out.Active, &out.CreatedAt,
		&out.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PrincipalAuth{}, NotFoundError{Op: op, Resource: "principal"}
		}
		return PrincipalAuth{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// FindPrincipal implements Directory.
func (d *PostgresDirectory) FindPrincipal(ctx context.Context, id string) (Principal, error) {
	const op = "identity.FindPrincipal"

	id = strings.TrimSpace(id)
	if id == "" {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}

	var p Principal
	err := d.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+d.table()+` WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, NotFoundError{Op: op, Resource: "principal"}
		}
		return Principal{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// SetActive flips the active flag of an existing principal.
func (d *PostgresDirectory) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	const op = "identity.SetActive"

	tag, err := d.pool.Exec(ctx,
		`UPDATE `+d.table()+` SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "principal"}
	}
	return nil
}

func (d *PostgresDirectory) table() string {
	return pgx.Identifier{d.schema, "users"}.Sanitize()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && strings.Contains(strings.ToLower(pgErr.ConstraintName), "email")
}
