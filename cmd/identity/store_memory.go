package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"warden/cmd/identity/ids"
)

// MemoryDirectory is the in-process Directory used when no database is configured and in tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	byID       map[string]Principal
	byUsername map[string]string
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:       make(map[string]Principal),
		byUsername: make(map[string]string),
	}
}

// Create adds a principal and returns it with its generated id.
func (d *MemoryDirectory) Create(_ context.Context, in NewPrincipal) (Principal, error) {
	username := NormalizeUsername(in.Username)
	if username == "" {
		return Principal{}, fmt.Errorf("identity.Create: empty username")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byUsername[username]; exists {
		return Principal{}, ErrConflict
	}

	p := Principal{
		ID:           ids.MustULID(in.Now),
		Username:     username,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Authorities:  NormalizeAuthorities(in.Authorities),
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
	}
	if p.DisplayName == "" {
		p.DisplayName = username
	}
	d.byID[p.ID] = p
	d.byUsername[username] = p.ID
	return clonePrincipal(p), nil
}

// ByUsername implements Directory.
func (d *MemoryDirectory) ByUsername(ctx context.Context, username string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[NormalizeUsername(username)]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return clonePrincipal(d.byID[id]), nil
}

// ByID implements Directory.
func (d *MemoryDirectory) ByID(ctx context.Context, id string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byID[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return clonePrincipal(p), nil
}

func clonePrincipal(p Principal) Principal {
	p.Authorities = append([]string(nil), p.Authorities...)
	return p
}
