// Package password hashes and verifies principal passwords with Argon2id.
//
// Encoded hashes use the PHC string format
// ($argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<key>). Stored hashes are treated as untrusted
// input: Verify refuses parameters far above the configured cost so a tampered row cannot be
// used to exhaust memory.
package password
