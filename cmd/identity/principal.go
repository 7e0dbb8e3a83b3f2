package identity

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned by a Directory when no principal matches.
	ErrNotFound = errors.New("principal not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("principal already exists")
)

// AuthorityAdmin grants the operator endpoints.
const AuthorityAdmin = "ADMIN"

// Principal is an authenticated identity plus its credential material.
type Principal struct {
	ID           string
	Username     string
	DisplayName  string
	Authorities  []string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
}

// HasAuthority reports whether p carries role.
func (p Principal) HasAuthority(role string) bool {
	return slices.Contains(p.Authorities, role)
}

// Directory resolves principals. Implementations return ErrNotFound for misses and any other
// error for store failures.
type Directory interface {
	ByUsername(ctx context.Context, username string) (Principal, error)
	ByID(ctx context.Context, id string) (Principal, error)
}

// NewPrincipal describes a principal to create.
type NewPrincipal struct {
	Username     string
	DisplayName  string
	Authorities  []string
	PasswordHash string
	Now          time.Time
}
