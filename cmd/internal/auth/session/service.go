package session

import (
	"context"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/clock"
	"warden/cmd/security/token"
)

// Service owns the refresh-token lifecycle: creation, validation, one-time rotation, revocation
// and the retention sweep.
//
// Plaintext secrets leave the service exactly once (from Create or Rotate) and are never stored.
// Only the Hasher digest reaches the Store.
type Service struct {
	cfg    Config
	store  Store
	hasher token.Hasher
	clock  clock.Clock
}

// NewService constructs a Service. A nil clock selects the system clock.
func NewService(cfg Config, store Store, hasher token.Hasher, clk clock.Clock) *Service {
	return &Service{cfg: cfg, store: store, hasher: hasher, clock: clock.OrSystem(clk)}
}

// Config returns the active configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) newToken(ownerID string, now time.Time) (Token, string, error) {
	secret, err := newOpaqueSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Token{}, "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Token{}, "", err
	}
	return Token{
		ID:         id,
		OwnerID:    ownerID,
		SecretHash: s.hasher.Hash(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL),
	}, secret, nil
}

// Create issues a new refresh token for ownerID and returns the row plus the one-time secret.
func (s *Service) Create(ctx context.Context, ownerID string) (Token, string, error) {
	const op = "session.Create"
	now := s.clock.Now()

	t, secret, err := s.newToken(ownerID, now)
	if err != nil {
		return Token{}, "", err
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return Token{}, "", autherr.Storage(op, err)
	}
	return t, secret, nil
}

// Validate returns the token for secret if it is usable now, stamping lastUsedAt.
// Blank or oversized input reports false without touching storage.
func (s *Service) Validate(ctx context.Context, secret string) (Token, bool, error) {
	const op = "session.Validate"
	secret, ok := normalizeSecret(secret)
	if !ok {
		return Token{}, false, nil
	}
	now := s.clock.Now()

	t, found, err := s.store.FindByHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		return Token{}, false, autherr.Storage(op, err)
	}
	if !found || !t.Usable(now) {
		return Token{}, false, nil
	}

	if err := s.store.Touch(ctx, t.ID, now); err != nil {
		return Token{}, false, autherr.Storage(op, err)
	}
	t.LastUsedAt = timePtr(now)
	return t, true, nil
}

// Rotate exchanges oldSecret for a successor owned by the same principal.
//
// It fails with autherr.ErrInvalidToken when the old token is unknown, expired, revoked, owned by
// someone other than ownerID, or already rotated (reason reused). An empty ownerID skips the owner
// check. The returned Token is the successor.
func (s *Service) Rotate(ctx context.Context, oldSecret, ownerID string) (Token, string, error) {
	const op = "session.Rotate"
	oldSecret, ok := normalizeSecret(oldSecret)
	if !ok {
		return Token{}, "", autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	now := s.clock.Now()

	next, secret, err := s.newToken(ownerID, now)
	if err != nil {
		return Token{}, "", err
	}

	old, err := s.store.Rotate(ctx, RotateInput{
		OldHash:      s.hasher.Hash(oldSecret),
		ClaimedOwner: ownerID,
		Now:          now,
		Next:         next,
	})
	if err != nil {
		return Token{}, "", autherr.Storage(op, err)
	}
	next.OwnerID = old.OwnerID
	return next, secret, nil
}

// Owner resolves the owner of secret regardless of usability. Logout-everywhere uses it to act
// on a token that may already be revoked.
func (s *Service) Owner(ctx context.Context, secret string) (string, bool, error) {
	const op = "session.Owner"
	secret, ok := normalizeSecret(secret)
	if !ok {
		return "", false, nil
	}
	t, found, err := s.store.FindByHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		return "", false, autherr.Storage(op, err)
	}
	if !found {
		return "", false, nil
	}
	return t.OwnerID, true, nil
}

// Revoke revokes the token for secret if it is still usable.
func (s *Service) Revoke(ctx context.Context, secret string) (bool, error) {
	return s.RevokeWithReason(ctx, secret, ReasonLogout)
}

// RevokeWithReason is Revoke with an explicit revocation reason.
func (s *Service) RevokeWithReason(ctx context.Context, secret, reason string) (bool, error) {
	const op = "session.Revoke"
	secret, ok := normalizeSecret(secret)
	if !ok {
		return false, nil
	}
	revoked, err := s.store.RevokeByHash(ctx, s.hasher.Hash(secret), s.clock.Now(), reason)
	if err != nil {
		return false, autherr.Storage(op, err)
	}
	return revoked, nil
}

// RevokeAll revokes every usable token of ownerID and returns how many were revoked.
func (s *Service) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	return s.RevokeAllWithReason(ctx, ownerID, ReasonLogoutAll)
}

// RevokeAllWithReason is RevokeAll with an explicit revocation reason.
func (s *Service) RevokeAllWithReason(ctx context.Context, ownerID, reason string) (int, error) {
	const op = "session.RevokeAll"
	if ownerID == "" {
		return 0, nil
	}
	n, err := s.store.RevokeAllByOwner(ctx, ownerID, s.clock.Now(), reason)
	if err != nil {
		return 0, autherr.Storage(op, err)
	}
	return n, nil
}

// SweepExpired deletes tokens that expired more than retention ago. A negative retention is
// treated as zero. Usable tokens are never removed because their expiry lies in the future.
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	const op = "session.SweepExpired"
	if retention < 0 {
		retention = 0
	}
	n, err := s.store.DeleteExpiredBefore(ctx, s.clock.Now().Add(-retention))
	if err != nil {
		return 0, autherr.Storage(op, err)
	}
	return n, nil
}
