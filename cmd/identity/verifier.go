package identity

import (
	"context"
	"errors"

	"warden/cmd/internal/auth/autherr"
	"warden/cmd/security/password"
)

// Verifier checks a presented secret against a principal's stored password hash.
type Verifier struct {
	dir       Directory
	pw        password.Config
	dummyHash string
}

// NewVerifier builds a Verifier. A dummy hash is computed once so that lookups for unknown
// principals cost the same as a wrong password.
func NewVerifier(dir Directory, pw password.Config) (*Verifier, error) {
	if dir == nil {
		return nil, errors.New("identity: nil directory")
	}
	dummy, err := pw.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	return &Verifier{dir: dir, pw: pw, dummyHash: dummy}, nil
}

// Verify returns the principal for key if secret matches.
//
// Unknown principals, disabled principals and wrong secrets all return ErrInvalidCredentials;
// autherr.ReasonOf tells them apart for the audit trail. Directory failures return ErrStorage.
func (v *Verifier) Verify(ctx context.Context, key, secret string) (Principal, error) {
	const op = "identity.Verify"

	p, err := v.dir.ByUsername(ctx, key)
	if errors.Is(err, ErrNotFound) {
		_, _ = v.pw.Verify(v.dummyHash, secret)
		return Principal{}, autherr.InvalidCredentials(op, autherr.ReasonUnknownPrincipal)
	}
	if err != nil {
		return Principal{}, autherr.Storage(op, err)
	}

	ok, err := v.pw.Verify(p.PasswordHash, secret)
	if err != nil || !ok {
		return Principal{}, autherr.InvalidCredentials(op, autherr.ReasonBadSecret)
	}
	if p.Disabled {
		return Principal{}, autherr.InvalidCredentials(op, "disabled")
	}

	p.PasswordHash = ""
	return p, nil
}

// Lookup resolves a principal by id for token refresh. A missing principal is reported as
// ErrInvalidToken because the refresh secret no longer maps to a live identity.
func (v *Verifier) Lookup(ctx context.Context, id string) (Principal, error) {
	const op = "identity.Lookup"

	p, err := v.dir.ByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, autherr.InvalidToken(op, autherr.ReasonUnknownPrincipal)
	}
	if err != nil {
		return Principal{}, autherr.Storage(op, err)
	}
	if p.Disabled {
		return Principal{}, autherr.InvalidToken(op, "disabled")
	}
	p.PasswordHash = ""
	return p, nil
}
