package access

import (
	"context"
	"testing"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/dbschema"
)

func TestPostgresBlacklist_AddContainsPurge(t *testing.T) {
	t.Parallel()
	pool := dbschema.OpenTestPool(t)
	bl := NewPostgresBlacklist(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := ids.NewUUID()
	base := time.Now().UTC().Truncate(time.Second).Add(-24 * time.Hour)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM warden.access_blacklist WHERE token_id = $1`, id)
	})

	if err := bl.Add(ctx, BlacklistEntry{TokenID: id, ExpiresAt: base}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := bl.Add(ctx, BlacklistEntry{TokenID: id, ExpiresAt: base.Add(-time.Hour)}); err != nil {
		t.Fatalf("Add again: %v", err)
	}

	ok, err := bl.Contains(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Contains: ok=%v err=%v", ok, err)
	}

	if _, err := bl.Purge(ctx, base.Add(time.Second)); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if ok, _ := bl.Contains(ctx, id); ok {
		t.Fatalf("expired entry must be purged")
	}
}
