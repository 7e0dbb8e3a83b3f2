// Package identity is warden's principal directory and password verifier.
//
// It answers "who is this and is the secret right" for the login flow. Principals live in
// Postgres (warden.principals) or, without a database, in an in-memory directory seeded from
// WARDEN_BOOTSTRAP_PRINCIPALS. The verifier keeps "unknown principal" and "bad secret" apart for
// audit purposes while returning the same ErrInvalidCredentials kind for both.
package identity
