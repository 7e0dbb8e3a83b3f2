package identity

import (
	"context"
	"errors"
	"strings"

	"warden/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresDirectory implements Directory over warden.principals.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a Postgres-backed directory. The pool is owned by the caller.
func NewPostgresDirectory(pool *pgxpool.Pool) (*PostgresDirectory, error) {
	if pool == nil {
		return nil, errors.New("identity: nil db pool")
	}
	return &PostgresDirectory{pool: pool}, nil
}

// Create inserts a principal.
func (d *PostgresDirectory) Create(ctx context.Context, in NewPrincipal) (Principal, error) {
	p := Principal{
		ID:           ids.MustULID(in.Now),
		Username:     NormalizeUsername(in.Username),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Authorities:  NormalizeAuthorities(in.Authorities),
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO warden.principals (
			id, username, display_name, authorities, password_hash, disabled, created_at
		) VALUES ($1, $2, $3, $4, $5, false, $6)
	`, p.ID, p.Username, p.DisplayName, p.Authorities, p.PasswordHash, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Principal{}, ErrConflict
		}
		return Principal{}, err
	}
	return p, nil
}

// ByUsername implements Directory.
func (d *PostgresDirectory) ByUsername(ctx context.Context, username string) (Principal, error) {
	return d.one(ctx, `WHERE username = $1`, NormalizeUsername(username))
}

// ByID implements Directory.
func (d *PostgresDirectory) ByID(ctx context.Context, id string) (Principal, error) {
	return d.one(ctx, `WHERE id = $1`, id)
}

func (d *PostgresDirectory) one(ctx context.Context, where string, arg string) (Principal, error) {
	var p Principal
	err := d.pool.QueryRow(ctx, `
		SELECT id, username, display_name, authorities, password_hash, disabled, created_at
		FROM warden.principals
		`+where, arg).Scan(
		&p.ID,
		&p.Username,
		&p.DisplayName,
		&p.Authorities,
		&p.PasswordHash,
		&p.Disabled,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}
