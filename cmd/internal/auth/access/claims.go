package access

import (
	"slices"
	"time"
)

// Claims is the identity envelope carried inside an access token.
type Claims struct {
	Subject     string
	TokenID     string
	Authorities []string
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasAuthority reports whether the claims were issued with authority a.
func (c Claims) HasAuthority(a string) bool {
	return slices.Contains(c.Authorities, a)
}

// ExpiredAt reports whether the token is no longer valid at now. A token is valid strictly
// before its expiry.
func (c Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Codec signs and verifies access tokens.
type Codec interface {
	// Encode signs c.
	Encode(c Claims) (string, error)

	// Decode verifies the signature, issuer and time claims at now.
	Decode(token string, now time.Time) (Claims, error)

	// Inspect verifies the signature only and returns the claims even if expired.
	Inspect(token string) (Claims, error)
}
