package access

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBlacklist shares the blacklist across instances through warden.access_blacklist.
type PostgresBlacklist struct {
	pool *pgxpool.Pool
}

// NewPostgresBlacklist returns a Postgres-backed Blacklist.
func NewPostgresBlacklist(pool *pgxpool.Pool) *PostgresBlacklist {
	return &PostgresBlacklist{pool: pool}
}

// Add implements Blacklist. Re-adding keeps the later expiry.
func (b *PostgresBlacklist) Add(ctx context.Context, e BlacklistEntry) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO warden.access_blacklist (token_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO UPDATE
		SET expires_at = GREATEST(warden.access_blacklist.expires_at, EXCLUDED.expires_at)
	`, e.TokenID, e.ExpiresAt)
	return err
}

// Contains implements Blacklist.
func (b *PostgresBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	var ok bool
	err := b.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM warden.access_blacklist WHERE token_id = $1)
	`, tokenID).Scan(&ok)
	return ok, err
}

// Purge implements Blacklist.
func (b *PostgresBlacklist) Purge(ctx context.Context, now time.Time) (int, error) {
	tag, err := b.pool.Exec(ctx, `
		DELETE FROM warden.access_blacklist WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
