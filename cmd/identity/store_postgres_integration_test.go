package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/dbschema"
)

func TestPostgresDirectory_CreateAndResolve(t *testing.T) {
	pool := dbschema.OpenTestPool(t)
	ctx := context.Background()

	dir, err := NewPostgresDirectory(pool)
	if err != nil {
		t.Fatalf("NewPostgresDirectory: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	username := "it_" + strings.ToLower(ids.MustULID(now))

	p, err := dir.Create(ctx, NewPrincipal{
		Username:     "  " + strings.ToUpper(username) + " ",
		Authorities:  []string{"user", "ADMIN", "USER"},
		PasswordHash: "$argon2id$placeholder",
		Now:          now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM warden.principals WHERE id = $1`, p.ID)
	})

	if p.Username != username || p.DisplayName != username {
		t.Fatalf("unexpected normalized principal: %+v", p)
	}

	byName, err := dir.ByUsername(ctx, username)
	if err != nil {
		t.Fatalf("ByUsername: %v", err)
	}
	if byName.ID != p.ID || !byName.HasAuthority(AuthorityAdmin) || byName.Disabled {
		t.Fatalf("ByUsername mismatch: %+v", byName)
	}

	byID, err := dir.ByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if byID.Username != username || !byID.CreatedAt.Equal(now) {
		t.Fatalf("ByID mismatch: %+v", byID)
	}

	if _, err := dir.Create(ctx, NewPrincipal{Username: username, PasswordHash: "x", Now: now}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Create err=%v want ErrConflict", err)
	}
	if _, err := dir.ByUsername(ctx, username+"_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing ByUsername err=%v want ErrNotFound", err)
	}
}
