package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/clock"
)

func newTestGuard(t *testing.T, codec string) (*Guard, *MemoryBlacklist, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	bl := NewMemoryBlacklist()
	cfg := DefaultConfig()
	cfg.TTL = 10 * time.Minute
	return NewGuard(cfg, testCodecs(t, "g")[codec], bl, clk), bl, clk
}

func TestGuard_ValidUntilExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, codec := range []string{CodecPaseto, CodecJWT} {
		t.Run(codec, func(t *testing.T) {
			g, _, clk := newTestGuard(t, codec)
			clk.Set(t0.Add(500 * time.Millisecond))

			tok, cl, err := g.Issue("alice", []string{"USER"})
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if !cl.IssuedAt.Equal(t0) || !cl.ExpiresAt.Equal(t0.Add(10*time.Minute)) {
				t.Fatalf("unexpected times: %+v", cl)
			}

			clk.Set(cl.ExpiresAt.Add(-time.Millisecond))
			got, err := g.Validate(ctx, tok)
			if err != nil {
				t.Fatalf("Validate before expiry: %v", err)
			}
			if got.Subject != "alice" || got.TokenID != cl.TokenID {
				t.Fatalf("claims mismatch: %+v", got)
			}

			clk.Set(cl.ExpiresAt)
			if _, err := g.Validate(ctx, tok); !errors.Is(err, autherr.ErrInvalidToken) {
				t.Fatalf("Validate at expiry: expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestGuard_IssueUniqueTokenIDs(t *testing.T) {
	t.Parallel()
	g, _, _ := newTestGuard(t, CodecPaseto)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		_, cl, err := g.Issue("alice", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, dup := seen[cl.TokenID]; dup {
			t.Fatalf("duplicate token id %q", cl.TokenID)
		}
		seen[cl.TokenID] = struct{}{}
	}
}

func TestGuard_RevokeIsPerToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, bl, _ := newTestGuard(t, CodecPaseto)

	a, _, _ := g.Issue("alice", nil)
	b, _, _ := g.Issue("alice", nil)

	revoked, err := g.Revoke(ctx, a)
	if err != nil || !revoked {
		t.Fatalf("Revoke: revoked=%v err=%v", revoked, err)
	}

	_, err = g.Validate(ctx, a)
	if !errors.Is(err, autherr.ErrInvalidToken) || autherr.ReasonOf(err) != autherr.ReasonBlacklisted {
		t.Fatalf("revoked token: expected blacklisted, got %v", err)
	}
	if _, err := g.Validate(ctx, b); err != nil {
		t.Fatalf("other token must stay valid: %v", err)
	}
	if bl.Len() != 1 {
		t.Fatalf("expected one blacklist entry, got %d", bl.Len())
	}
}

func TestGuard_RevokeNoOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, bl, clk := newTestGuard(t, CodecJWT)

	for _, in := range []string{"", "garbage", "a.b.c"} {
		revoked, err := g.Revoke(ctx, in)
		if err != nil || revoked {
			t.Fatalf("Revoke(%q): revoked=%v err=%v", in, revoked, err)
		}
	}

	tok, _, _ := g.Issue("alice", nil)
	clk.Advance(time.Hour)
	if revoked, err := g.Revoke(ctx, tok); err != nil || revoked {
		t.Fatalf("expired token: revoked=%v err=%v", revoked, err)
	}
	if bl.Len() != 0 {
		t.Fatalf("no entries expected, got %d", bl.Len())
	}
}

func TestGuard_Purge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, bl, clk := newTestGuard(t, CodecPaseto)

	tok, _, _ := g.Issue("alice", nil)
	if _, err := g.Revoke(ctx, tok); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if n, _ := g.Purge(ctx); n != 0 {
		t.Fatalf("entry must survive until expiry, purged %d", n)
	}
	clk.Advance(11 * time.Minute)
	if n, _ := g.Purge(ctx); n != 1 || bl.Len() != 0 {
		t.Fatalf("expected 1 purged, got %d (len %d)", n, bl.Len())
	}
}

type brokenBlacklist struct{ MemoryBlacklist }

func (*brokenBlacklist) Contains(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGuard_BlacklistFailureIsStorageError(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(t0)
	g := NewGuard(DefaultConfig(), testCodecs(t, "s")[CodecJWT], &brokenBlacklist{}, clk)

	tok, _, _ := g.Issue("alice", nil)
	if _, err := g.Validate(context.Background(), tok); !errors.Is(err, autherr.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	if _, err := g.Validate(context.Background(), "garbage"); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("forged tokens are rejected before the blacklist: %v", err)
	}
}

func TestMemoryBlacklist_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bl := NewMemoryBlacklist()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			_ = bl.Add(ctx, BlacklistEntry{TokenID: id, ExpiresAt: t0})
		}()
		go func() {
			defer wg.Done()
			_, _ = bl.Contains(ctx, id)
		}()
	}
	wg.Wait()

	if bl.Len() != 26 {
		t.Fatalf("expected 26 entries, got %d", bl.Len())
	}
}

func TestGuard_RejectsTokenWithoutRevocableID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, codec := range []string{CodecPaseto, CodecJWT} {
		t.Run(codec, func(t *testing.T) {
			g, _, _ := newTestGuard(t, codec)
			cl := sampleClaims()
			cl.TokenID = "not-a-token-id"
			cl.ExpiresAt = t0.Add(5 * time.Minute)

			tok, err := g.codec.Encode(cl)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			_, err = g.Validate(ctx, tok)
			if !errors.Is(err, autherr.ErrInvalidToken) || autherr.ReasonOf(err) != autherr.ReasonMalformed {
				t.Fatalf("expected malformed InvalidToken, got %v", err)
			}
		})
	}
}
