package session

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// maxSecretLen bounds accepted input before hashing.
const maxSecretLen = 4096

func newOpaqueSecret(nBytes int) (string, error) {
	if nBytes < 32 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// normalizeSecret trims s and reports whether it is worth a storage lookup.
func normalizeSecret(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxSecretLen {
		return "", false
	}
	return s, true
}
