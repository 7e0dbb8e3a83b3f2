// Package access issues and validates warden's short-lived access tokens.
//
// Access tokens are stateless: a Codec signs the claims and verifies them again on every
// request. Revocation before natural expiry is done through a Blacklist keyed by the token id.
// Validate always verifies the signature first and only then consults the blacklist, so forged
// tokens never cost a blacklist lookup.
package access
