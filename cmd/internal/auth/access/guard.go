package access

import (
	"context"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/clock"
)

// Guard issues access tokens and decides whether a presented token is acceptable.
type Guard struct {
	codec     Codec
	blacklist Blacklist
	clock     clock.Clock

	ttl time.Duration
}

// NewGuard constructs a Guard. A nil blacklist selects an in-memory one.
func NewGuard(cfg Config, codec Codec, blacklist Blacklist, clk clock.Clock) *Guard {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Guard{codec: codec, blacklist: blacklist, clock: clock.OrSystem(clk), ttl: ttl}
}

// TTL returns the lifetime of issued tokens.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Issue signs a new token for ownerID with a snapshot of authorities and a fresh token id.
func (g *Guard) Issue(ownerID string, authorities []string) (string, Claims, error) {
	// Token time claims carry second precision.
	now := g.clock.Now().Truncate(time.Second)
	cl := Claims{
		Subject:     ownerID,
		TokenID:     ids.NewUUID(),
		Authorities: append([]string(nil), authorities...),
		IssuedAt:    now,
		ExpiresAt:   now.Add(g.ttl),
	}
	signed, err := g.codec.Encode(cl)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, cl, nil
}

// Validate verifies token and rejects it if its id is blacklisted.
func (g *Guard) Validate(ctx context.Context, token string) (Claims, error) {
	const op = "access.Validate"
	if token == "" {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}

	cl, err := g.codec.Decode(token, g.clock.Now())
	if err != nil {
		return Claims{}, err
	}
	// The blacklist is keyed by token id; a token without one could never be revoked.
	if !ids.IsUUID(cl.TokenID) {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}

	revoked, err := g.blacklist.Contains(ctx, cl.TokenID)
	if err != nil {
		return Claims{}, autherr.Storage(op, err)
	}
	if revoked {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonBlacklisted)
	}
	return cl, nil
}

// Inspect returns the claims of a correctly signed token, expired or not.
func (g *Guard) Inspect(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}
	cl, err := g.codec.Inspect(token)
	if err != nil {
		return Claims{}, false
	}
	return cl, true
}

// Revoke blacklists token until its natural expiry. A token that cannot be decoded, or has
// already expired, is a no-op. Only blacklist failures are returned.
func (g *Guard) Revoke(ctx context.Context, token string) (bool, error) {
	const op = "access.Revoke"
	cl, ok := g.Inspect(token)
	if !ok || cl.ExpiredAt(g.clock.Now()) {
		return false, nil
	}
	if err := g.blacklist.Add(ctx, BlacklistEntry{TokenID: cl.TokenID, ExpiresAt: cl.ExpiresAt}); err != nil {
		return false, autherr.Storage(op, err)
	}
	return true, nil
}

// Purge drops blacklist entries whose tokens have expired.
func (g *Guard) Purge(ctx context.Context) (int, error) {
	n, err := g.blacklist.Purge(ctx, g.clock.Now())
	if err != nil {
		return 0, autherr.Storage("access.Purge", err)
	}
	return n, nil
}
