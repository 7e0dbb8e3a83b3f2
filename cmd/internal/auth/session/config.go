package session

import (
	"os"
	"strconv"
	"strings"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// Config controls refresh-token lifetime, entropy and retention.
type Config struct {
	// RefreshTTL is the lifetime of a newly created or rotated token.
	RefreshTTL time.Duration

	// RefreshTokenBytes is the number of random bytes in a secret (32..64, i.e. >= 256 bits).
	RefreshTokenBytes int

	// Retention is how long expired rows are kept for forensics before SweepExpired deletes them.
	Retention time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RefreshTTL:        7 * 24 * time.Hour,
		RefreshTokenBytes: 32,
		Retention:         7 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - WARDEN_REFRESH_TTL
//   - WARDEN_REFRESH_TOKEN_BYTES
//   - WARDEN_REFRESH_RETENTION
//
// Returns an autherr.ErrConfig error naming the offending variable.
func LoadConfigFromEnv() (Config, error) {
	const op = "session.LoadConfigFromEnv"
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_REFRESH_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, autherr.Config(op, "WARDEN_REFRESH_TTL")
		}
		cfg.RefreshTTL = d
	}

	if v := strings.TrimSpace(os.Getenv("WARDEN_REFRESH_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, autherr.Config(op, "WARDEN_REFRESH_TOKEN_BYTES")
		}
		cfg.RefreshTokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("WARDEN_REFRESH_RETENTION")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, autherr.Config(op, "WARDEN_REFRESH_RETENTION")
		}
		cfg.Retention = d
	}

	return cfg, nil
}
