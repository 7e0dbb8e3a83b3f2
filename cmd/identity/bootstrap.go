package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warden/cmd/security/password"
)

// Creator is implemented by directories that accept new principals.
type Creator interface {
	Create(ctx context.Context, in NewPrincipal) (Principal, error)
}

// BootstrapEntry is one parsed WARDEN_BOOTSTRAP_PRINCIPALS entry.
type BootstrapEntry struct {
	Username    string
	Password    string
	Authorities []string
}

// ParseBootstrap parses "username:password[:ROLE1|ROLE2]" entries separated by ';'.
func ParseBootstrap(list string) ([]BootstrapEntry, error) {
	var out []BootstrapEntry
	for _, raw := range strings.Split(list, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
			return nil, fmt.Errorf("identity.ParseBootstrap: malformed entry %q", strings.TrimSpace(parts[0]))
		}
		e := BootstrapEntry{Username: NormalizeUsername(parts[0]), Password: parts[1]}
		if len(parts) == 3 {
			e.Authorities = NormalizeAuthorities(strings.Split(parts[2], "|"))
		}
		out = append(out, e)
	}
	return out, nil
}

// Bootstrap hashes and creates every entry of list. Usernames that already exist are skipped so
// restarts against a persistent directory stay idempotent. It returns how many were created.
func Bootstrap(ctx context.Context, dir Creator, pw password.Config, list string, now time.Time) (int, error) {
	entries, err := ParseBootstrap(list)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, e := range entries {
		hash, err := pw.Hash(e.Password)
		if err != nil {
			return created, fmt.Errorf("identity.Bootstrap %s: %w", e.Username, err)
		}
		_, err = dir.Create(ctx, NewPrincipal{
			Username:     e.Username,
			DisplayName:  e.Username,
			Authorities:  e.Authorities,
			PasswordHash: hash,
			Now:          now,
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
