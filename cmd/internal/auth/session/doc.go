// Package session owns the lifecycle of warden's refresh tokens.
//
// A refresh token is an opaque random secret handed to the client exactly once; only its hash is
// stored. Tokens are one-time-use: Rotate atomically revokes the presented token and issues its
// successor, and presenting a rotated secret again is reported as reuse so the caller can revoke
// every session of the owner. Persistence is behind Store (Postgres or in-memory).
package session
