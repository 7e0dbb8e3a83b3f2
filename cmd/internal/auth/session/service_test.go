package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/clock"
	"warden/cmd/security/token"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryStore, *clock.Manual) {
	t.Helper()
	store := NewMemoryStore()
	clk := clock.NewManual(t0)
	cfg := DefaultConfig()
	cfg.RefreshTTL = time.Hour
	return NewService(cfg, store, token.NewHasher([]byte(strings.Repeat("k", 32))), clk), store, clk
}

func mustCreate(ctx context.Context, t *testing.T, svc *Service, owner string) (Token, string) {
	t.Helper()
	tok, secret, err := svc.Create(ctx, owner)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tok, secret
}

func wantInvalidToken(t *testing.T, err error, reason string) {
	t.Helper()
	if !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if got := autherr.ReasonOf(err); got != reason {
		t.Fatalf("expected reason %q, got %q", reason, got)
	}
}

func TestCreate_PersistsHashOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tok, secret := mustCreate(ctx, t, svc, "alice")
	if secret == "" || len(secret) < 43 {
		t.Fatalf("expected >=256-bit base64url secret, got %q", secret)
	}
	if tok.SecretHash == secret || strings.Contains(tok.SecretHash, secret) {
		t.Fatalf("secret must not be persisted")
	}
	if !tok.ExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("ExpiresAt: got %v", tok.ExpiresAt)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one row, got %d", store.Len())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, clk := newTestService(t)
	_, secret := mustCreate(ctx, t, svc, "alice")

	clk.Advance(time.Minute)
	got, ok, err := svc.Validate(ctx, "  "+secret+"\n")
	if err != nil || !ok {
		t.Fatalf("Validate: ok=%v err=%v", ok, err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("expected lastUsedAt stamped, got %v", got.LastUsedAt)
	}

	for _, in := range []string{"", "   ", strings.Repeat("x", maxSecretLen+1), "unknown"} {
		if _, ok, err := svc.Validate(ctx, in); ok || err != nil {
			t.Fatalf("Validate(%q): ok=%v err=%v", in, ok, err)
		}
	}

	clk.Set(t0.Add(time.Hour))
	if _, ok, _ := svc.Validate(ctx, secret); ok {
		t.Fatalf("token must be unusable at expiresAt")
	}
}

func TestValidate_BlankInputDoesNotTouchStorage(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok, err := svc.Validate(ctx, ""); ok || err != nil {
		t.Fatalf("expected (false, nil) without storage access, got ok=%v err=%v", ok, err)
	}
}

func TestRotate_OneTimeUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, clk := newTestService(t)
	first, secret := mustCreate(ctx, t, svc, "alice")

	clk.Advance(time.Second)
	next, nextSecret, err := svc.Rotate(ctx, secret, "alice")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if nextSecret == secret || next.ID == first.ID {
		t.Fatalf("expected a new token and secret")
	}
	if next.OwnerID != "alice" {
		t.Fatalf("OwnerID: got %q", next.OwnerID)
	}

	_, _, err = svc.Rotate(ctx, secret, "alice")
	wantInvalidToken(t, err, autherr.ReasonReused)

	if _, ok, _ := svc.Validate(ctx, secret); ok {
		t.Fatalf("rotated secret must not validate")
	}
	if _, ok, _ := svc.Validate(ctx, nextSecret); !ok {
		t.Fatalf("successor must validate")
	}
}

func TestRotate_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("owner mismatch", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, secret := mustCreate(ctx, t, svc, "alice")
		_, _, err := svc.Rotate(ctx, secret, "mallory")
		wantInvalidToken(t, err, autherr.ReasonOwnerMismatch)

		if _, ok, _ := svc.Validate(ctx, secret); !ok {
			t.Fatalf("failed rotation must leave the token usable")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, _, err := svc.Rotate(ctx, "nope", "")
		wantInvalidToken(t, err, autherr.ReasonNotFound)
	})

	t.Run("blank", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, _, err := svc.Rotate(ctx, " ", "")
		wantInvalidToken(t, err, autherr.ReasonMalformed)
	})

	t.Run("expired", func(t *testing.T) {
		svc, _, clk := newTestService(t)
		_, secret := mustCreate(ctx, t, svc, "alice")
		clk.Advance(2 * time.Hour)
		_, _, err := svc.Rotate(ctx, secret, "alice")
		wantInvalidToken(t, err, autherr.ReasonExpired)
	})

	t.Run("revoked", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, secret := mustCreate(ctx, t, svc, "alice")
		if ok, err := svc.Revoke(ctx, secret); !ok || err != nil {
			t.Fatalf("Revoke: ok=%v err=%v", ok, err)
		}
		_, _, err := svc.Rotate(ctx, secret, "alice")
		wantInvalidToken(t, err, autherr.ReasonRevoked)
	})

	t.Run("no claimed owner", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, secret := mustCreate(ctx, t, svc, "alice")
		next, _, err := svc.Rotate(ctx, secret, "")
		if err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		if next.OwnerID != "alice" {
			t.Fatalf("successor owner: got %q", next.OwnerID)
		}
	})
}

func TestRotate_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	_, secret := mustCreate(ctx, t, svc, "alice")

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := svc.Rotate(ctx, secret, "alice")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, autherr.ErrInvalidToken):
				failures++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || failures != n-1 {
		t.Fatalf("expected 1 winner and %d failures, got %d/%d", n-1, wins, failures)
	}
	if store.Len() != 2 {
		t.Fatalf("expected exactly one successor row, got %d rows", store.Len())
	}
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, a1 := mustCreate(ctx, t, svc, "alice")
	_, a2 := mustCreate(ctx, t, svc, "alice")
	_, b1 := mustCreate(ctx, t, svc, "bob")
	if _, err := svc.Revoke(ctx, a2); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	n, err := svc.RevokeAll(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 usable token revoked, got %d", n)
	}
	if _, ok, _ := svc.Validate(ctx, a1); ok {
		t.Fatalf("alice token must be revoked")
	}
	if _, ok, _ := svc.Validate(ctx, b1); !ok {
		t.Fatalf("bob token must be unaffected")
	}

	if ok, _ := svc.Revoke(ctx, a1); ok {
		t.Fatalf("revoking a revoked token must report false")
	}
}

func TestOwner_ResolvesRevokedTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, secret := mustCreate(ctx, t, svc, "alice")
	_, _ = svc.Revoke(ctx, secret)

	owner, ok, err := svc.Owner(ctx, secret)
	if err != nil || !ok || owner != "alice" {
		t.Fatalf("Owner: %q ok=%v err=%v", owner, ok, err)
	}
}

func TestSweepExpired_KeepsUsableRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store, clk := newTestService(t)

	_, old := mustCreate(ctx, t, svc, "alice")
	_, _ = svc.Revoke(ctx, old)

	clk.Advance(50 * time.Minute)
	_, fresh := mustCreate(ctx, t, svc, "alice")

	// First token expired at t0+1h; move to t0+1h+10m.
	clk.Set(t0.Add(70 * time.Minute))

	n, err := svc.SweepExpired(ctx, 15*time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("within retention: n=%d err=%v", n, err)
	}

	n, err = svc.SweepExpired(ctx, 5*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("past retention: n=%d err=%v", n, err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected the usable row to survive, got %d rows", store.Len())
	}
	if _, ok, _ := svc.Validate(ctx, fresh); !ok {
		t.Fatalf("usable token must survive the sweep")
	}
}

type failingStore struct {
	MemoryStore
	err error
}

func (f *failingStore) FindByHash(context.Context, string) (Token, bool, error) {
	return Token{}, false, f.err
}

func (f *failingStore) Insert(context.Context, Token) error { return f.err }

func TestService_StorageErrors(t *testing.T) {
	t.Parallel()
	store := &failingStore{err: context.DeadlineExceeded}
	svc := NewService(DefaultConfig(), store, token.Hasher{}, clock.NewManual(t0))
	ctx := context.Background()

	_, _, err := svc.Create(ctx, "alice")
	if !errors.Is(err, autherr.ErrStorage) || !autherr.Retryable(err) {
		t.Fatalf("Create: expected retryable ErrStorage, got %v", err)
	}
	if autherr.ReasonOf(err) != autherr.ReasonTimeout {
		t.Fatalf("expected timeout reason, got %q", autherr.ReasonOf(err))
	}

	_, _, err = svc.Validate(ctx, "secret")
	if !errors.Is(err, autherr.ErrStorage) {
		t.Fatalf("Validate: expected ErrStorage, got %v", err)
	}
}
