package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// MemoryStore is the in-process Store used when no database is configured and in tests.
// A single mutex makes Rotate's read-check-write sequence atomic.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Token
	byHash map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Token),
		byHash: make(map[string]string),
	}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *MemoryStore) insertLocked(t Token) error {
	if _, dup := s.byHash[t.SecretHash]; dup {
		return errors.New("session: duplicate secret hash")
	}
	if _, dup := s.byID[t.ID]; dup {
		return errors.New("session: duplicate id")
	}
	cp := t
	s.byID[t.ID] = &cp
	s.byHash[t.SecretHash] = t.ID
	return nil
}

// FindByHash implements Store.
func (s *MemoryStore) FindByHash(ctx context.Context, hash string) (Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.lookupLocked(hash)
	if t == nil {
		return Token{}, false, nil
	}
	return *t, true, nil
}

func (s *MemoryStore) lookupLocked(hash string) *Token {
	id, ok := s.byHash[hash]
	if !ok {
		return nil
	}
	return s.byID[id]
}

// Touch implements Store.
func (s *MemoryStore) Touch(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.byID[id]; ok {
		t.LastUsedAt = timePtr(now)
	}
	return nil
}

// Rotate implements Store.
func (s *MemoryStore) Rotate(ctx context.Context, in RotateInput) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.lookupLocked(in.OldHash)
	if old == nil {
		return Token{}, autherr.InvalidToken("session.Rotate", autherr.ReasonNotFound)
	}
	if err := CheckRotatable(*old, in.ClaimedOwner, in.Now); err != nil {
		return Token{}, err
	}

	next := in.Next
	next.OwnerID = old.OwnerID
	if err := s.insertLocked(next); err != nil {
		return Token{}, err
	}

	before := *old
	old.Revoked = true
	old.RevokedAt = timePtr(in.Now)
	old.LastUsedAt = timePtr(in.Now)
	old.RevocationReason = strPtr(ReasonRotation)
	old.ReplacedBy = strPtr(next.ID)
	return before, nil
}

// RevokeByHash implements Store.
func (s *MemoryStore) RevokeByHash(ctx context.Context, hash string, now time.Time, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.lookupLocked(hash)
	if t == nil || !t.Usable(now) {
		return false, nil
	}
	revokeLocked(t, now, reason)
	return true, nil
}

// RevokeAllByOwner implements Store.
func (s *MemoryStore) RevokeAllByOwner(ctx context.Context, ownerID string, now time.Time, reason string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.byID {
		if t.OwnerID == ownerID && t.Usable(now) {
			revokeLocked(t, now, reason)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredBefore implements Store.
func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.byID {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.byHash, t.SecretHash)
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func revokeLocked(t *Token, now time.Time, reason string) {
	t.Revoked = true
	t.RevokedAt = timePtr(now)
	t.RevocationReason = strPtr(reason)
}
