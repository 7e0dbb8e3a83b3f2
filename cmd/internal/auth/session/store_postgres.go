package session

import (
	"context"
	"errors"
	"time"

	"warden/cmd/internal/auth/autherr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (warden.refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed refresh token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tokenColumns = `
	id, owner_id, secret_hash,
	issued_at, expires_at, last_used_at,
	revoked, revoked_at, revocation_reason, replaced_by`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanToken(row pgx.Row) (Token, bool, error) {
	var t Token
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.SecretHash,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.LastUsedAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.RevocationReason,
		&t.ReplacedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	return t, true, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, t Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warden.refresh_tokens (
			id, owner_id, secret_hash, issued_at, expires_at, revoked
		) VALUES ($1, $2, $3, $4, $5, false)
	`, t.ID, t.OwnerID, t.SecretHash, t.IssuedAt, t.ExpiresAt)
	return err
}

// FindByHash implements Store.
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (Token, bool, error) {
	return findByHash(ctx, s.pool, hash, false)
}

func findByHash(ctx context.Context, q querier, hash string, forUpdate bool) (Token, bool, error) {
	sql := `SELECT` + tokenColumns + ` FROM warden.refresh_tokens WHERE secret_hash = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanToken(q.QueryRow(ctx, sql, hash))
}

// Touch implements Store.
func (s *PostgresStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE warden.refresh_tokens
		SET last_used_at = $2
		WHERE id = $1
	`, id, now)
	return err
}

// Rotate implements Store inside one transaction. The old row is locked with FOR UPDATE, so a
// concurrent rotation of the same secret waits and then observes the row already revoked.
func (s *PostgresStore) Rotate(ctx context.Context, in RotateInput) (Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Token{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, found, err := findByHash(ctx, tx, in.OldHash, true)
	if err != nil {
		return Token{}, err
	}
	if !found {
		return Token{}, autherr.InvalidToken("session.Rotate", autherr.ReasonNotFound)
	}
	if err := CheckRotatable(old, in.ClaimedOwner, in.Now); err != nil {
		return Token{}, err
	}

	next := in.Next
	next.OwnerID = old.OwnerID
	if _, err := tx.Exec(ctx, `
		INSERT INTO warden.refresh_tokens (
			id, owner_id, secret_hash, issued_at, expires_at, revoked
		) VALUES ($1, $2, $3, $4, $5, false)
	`, next.ID, next.OwnerID, next.SecretHash, next.IssuedAt, next.ExpiresAt); err != nil {
		return Token{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE warden.refresh_tokens
		SET
			last_used_at = $2,
			revoked = true,
			revoked_at = $2,
			revocation_reason = $3,
			replaced_by = $4
		WHERE id = $1
	`, old.ID, in.Now, ReasonRotation, next.ID); err != nil {
		return Token{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Token{}, err
	}
	return old, nil
}

// RevokeByHash implements Store.
func (s *PostgresStore) RevokeByHash(ctx context.Context, hash string, now time.Time, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE warden.refresh_tokens
		SET revoked = true, revoked_at = $2, revocation_reason = $3
		WHERE secret_hash = $1 AND revoked = false AND expires_at > $2
	`, hash, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllByOwner implements Store.
func (s *PostgresStore) RevokeAllByOwner(ctx context.Context, ownerID string, now time.Time, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE warden.refresh_tokens
		SET revoked = true, revoked_at = $2, revocation_reason = $3
		WHERE owner_id = $1 AND revoked = false AND expires_at > $2
	`, ownerID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpiredBefore implements Store.
func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM warden.refresh_tokens
		WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
