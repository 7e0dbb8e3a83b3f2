// Package token provides the secret-hashing primitive used for refresh tokens.
//
// Refresh secrets are stored only as a 64-char hex digest. When WARDEN_TOKEN_HMAC_KEY is set the
// digest is HMAC-SHA256 keyed with it, otherwise plain SHA-256 (development only; production
// deployments set WARDEN_REQUIRE_TOKEN_HMAC=true).
package token
