package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"warden/cmd/internal/auth/autherr"
	"warden/cmd/security/password"
)

func testPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestVerifier(t *testing.T) (*Verifier, *MemoryDirectory) {
	t.Helper()

	dir := NewMemoryDirectory()
	pw := testPasswordConfig()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := Bootstrap(context.Background(), dir, pw, "alice:wonderland-42:USER|admin;bob:builder-1234", now); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	v, err := NewVerifier(dir, pw)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v, dir
}

func TestVerify_Success(t *testing.T) {
	v, _ := newTestVerifier(t)

	p, err := v.Verify(context.Background(), "  Alice ", "wonderland-42")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Username != "alice" || p.ID == "" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if !p.HasAuthority("USER") || !p.HasAuthority(AuthorityAdmin) {
		t.Fatalf("expected USER and ADMIN authorities, got %v", p.Authorities)
	}
	if p.PasswordHash != "" {
		t.Fatalf("password hash must not leave the verifier")
	}
}

func TestVerify_FailuresShareKindButNotReason(t *testing.T) {
	v, _ := newTestVerifier(t)
	ctx := context.Background()

	_, errUnknown := v.Verify(ctx, "mallory", "whatever-123")
	_, errBad := v.Verify(ctx, "alice", "not-the-password")

	for _, err := range []error{errUnknown, errBad} {
		if !errors.Is(err, autherr.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if autherr.ReasonOf(errUnknown) != autherr.ReasonUnknownPrincipal {
		t.Fatalf("unexpected reason %q", autherr.ReasonOf(errUnknown))
	}
	if autherr.ReasonOf(errBad) != autherr.ReasonBadSecret {
		t.Fatalf("unexpected reason %q", autherr.ReasonOf(errBad))
	}
}

func TestVerify_DirectoryFailureIsStorage(t *testing.T) {
	v, _ := newTestVerifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, "alice", "wonderland-42")
	if !errors.Is(err, autherr.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	v, dir := newTestVerifier(t)
	ctx := context.Background()

	bob, err := dir.ByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("ByUsername: %v", err)
	}
	got, err := v.Lookup(ctx, bob.ID)
	if err != nil || got.Username != "bob" {
		t.Fatalf("Lookup: %+v %v", got, err)
	}

	if _, err := v.Lookup(ctx, "01J00000000000000000000000"); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing principal, got %v", err)
	}
}

func TestParseBootstrap(t *testing.T) {
	entries, err := ParseBootstrap(" alice:pw:ADMIN|user|ADMIN ; bob:pw2 ;")
	if err != nil {
		t.Fatalf("ParseBootstrap: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].Authorities; len(got) != 2 || got[0] != "ADMIN" || got[1] != "USER" {
		t.Fatalf("unexpected authorities %v", got)
	}
	if entries[1].Username != "bob" || len(entries[1].Authorities) != 0 {
		t.Fatalf("unexpected entry %+v", entries[1])
	}

	if _, err := ParseBootstrap("nopassword"); err == nil {
		t.Fatalf("expected error for malformed entry")
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	dir := NewMemoryDirectory()
	pw := testPasswordConfig()
	now := time.Now().UTC()
	ctx := context.Background()

	n, err := Bootstrap(ctx, dir, pw, "carol:carol-password", now)
	if err != nil || n != 1 {
		t.Fatalf("first Bootstrap: n=%d err=%v", n, err)
	}
	n, err = Bootstrap(ctx, dir, pw, "carol:carol-password", now)
	if err != nil || n != 0 {
		t.Fatalf("second Bootstrap: n=%d err=%v", n, err)
	}
}
