package access

import (
	"context"
	"sync"
	"time"
)

// BlacklistEntry suppresses a token id until ExpiresAt, the token's natural expiry.
type BlacklistEntry struct {
	TokenID   string
	ExpiresAt time.Time
}

// Blacklist is the shared set of revoked access-token ids. Implementations are safe for
// concurrent use.
type Blacklist interface {
	Add(ctx context.Context, e BlacklistEntry) error
	Contains(ctx context.Context, tokenID string) (bool, error)

	// Purge drops entries whose ExpiresAt is before now.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// MemoryBlacklist is a process-local Blacklist.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryBlacklist returns an empty blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]time.Time)}
}

// Add implements Blacklist.
func (b *MemoryBlacklist) Add(ctx context.Context, e BlacklistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.entries[e.TokenID]; !ok || e.ExpiresAt.After(cur) {
		b.entries[e.TokenID] = e.ExpiresAt
	}
	return nil
}

// Contains implements Blacklist.
func (b *MemoryBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[tokenID]
	return ok, nil
}

// Purge implements Blacklist.
func (b *MemoryBlacklist) Purge(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, exp := range b.entries {
		if exp.Before(now) {
			delete(b.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries.
func (b *MemoryBlacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
