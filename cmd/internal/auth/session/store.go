package session

import (
	"context"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// Revocation reasons stored alongside revoked rows.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
	ReasonRotation  = "rotation"
	ReasonReuse     = "reuse_detected"
	ReasonAdmin     = "admin"
)

// Token mirrors a warden.refresh_tokens row.
type Token struct {
	ID         string
	OwnerID    string
	SecretHash string

	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time

	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason *string

	// ReplacedBy is the id of the rotation successor; set only when revoked by rotation.
	ReplacedBy *string
}

// Usable reports whether t may be used at now. It is evaluated on every use, never cached.
func (t Token) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// RotateInput describes one atomic rotation.
type RotateInput struct {
	OldHash string

	// ClaimedOwner is the owner the caller believes it holds; empty skips the check.
	ClaimedOwner string

	Now time.Time

	// Next is the successor row. The store fills OwnerID from the rotated row.
	Next Token
}

// Store abstracts persistence for refresh tokens.
//
// Lookups report "not found" through their bool result, never as an error. Rotate must be
// atomic: two concurrent calls on the same OldHash produce exactly one successor.
type Store interface {
	Insert(ctx context.Context, t Token) error
	FindByHash(ctx context.Context, hash string) (Token, bool, error)
	Touch(ctx context.Context, id string, now time.Time) error

	// Rotate locks the row for OldHash, checks it with CheckRotatable, inserts Next and marks
	// the old row revoked with replaced_by = Next.ID. It returns the old row as it was.
	Rotate(ctx context.Context, in RotateInput) (Token, error)

	// RevokeByHash revokes the row for hash if it is still usable at now.
	RevokeByHash(ctx context.Context, hash string, now time.Time, reason string) (bool, error)

	// RevokeAllByOwner revokes every usable row for owner and returns how many changed.
	RevokeAllByOwner(ctx context.Context, ownerID string, now time.Time, reason string) (int, error)

	// DeleteExpiredBefore hard-deletes rows whose expires_at is before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CheckRotatable decides whether old may be rotated at now by claimedOwner.
// Both store implementations call it inside their critical section.
func CheckRotatable(old Token, claimedOwner string, now time.Time) error {
	const op = "session.Rotate"
	switch {
	case old.Revoked && old.ReplacedBy != nil:
		return autherr.InvalidToken(op, autherr.ReasonReused)
	case old.Revoked:
		return autherr.InvalidToken(op, autherr.ReasonRevoked)
	case !now.Before(old.ExpiresAt):
		return autherr.InvalidToken(op, autherr.ReasonExpired)
	case claimedOwner != "" && claimedOwner != old.OwnerID:
		return autherr.InvalidToken(op, autherr.ReasonOwnerMismatch)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
