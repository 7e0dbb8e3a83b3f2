package flow

import (
	"os"
	"strconv"
	"strings"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// Env keys.
const (
	EnvRevokeOnReuse    = "WARDEN_AUTH_REVOKE_ON_REUSE"
	EnvLoginUserMax     = "WARDEN_AUTH_LOGIN_USER_MAX"
	EnvLoginUserWindow  = "WARDEN_AUTH_LOGIN_USER_WINDOW"
	EnvLoginAddrMax     = "WARDEN_AUTH_LOGIN_IP_MAX"
	EnvLoginAddrWindow  = "WARDEN_AUTH_LOGIN_IP_WINDOW"
	EnvAuditDeniedReads = "WARDEN_AUTH_AUDIT_ACCESS_DENIED"
)

// Config controls orchestrator policy.
type Config struct {
	// RevokeOnReuse revokes every refresh token of the owner and drops the registry entry when a
	// rotated refresh secret is presented again.
	RevokeOnReuse bool

	// Login throttling from recent audit failures. Zero max disables a check.
	LoginUserMax    int
	LoginUserWindow time.Duration
	LoginAddrMax    int
	LoginAddrWindow time.Duration

	// AuditAccessDenied records an audit event for every rejected bearer token.
	AuditAccessDenied bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RevokeOnReuse:     true,
		LoginUserMax:      5,
		LoginUserWindow:   15 * time.Minute,
		LoginAddrMax:      20,
		LoginAddrWindow:   5 * time.Minute,
		AuditAccessDenied: true,
	}
}

// LoadConfigFromEnv reads WARDEN_AUTH_* policy variables.
func LoadConfigFromEnv() (Config, error) {
	const op = "flow.LoadConfigFromEnv"
	cfg := DefaultConfig()

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvRevokeOnReuse, &cfg.RevokeOnReuse},
		{EnvAuditDeniedReads, &cfg.AuditAccessDenied},
	}
	for _, b := range bools {
		if v := env(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, autherr.Config(op, b.key)
			}
			*b.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvLoginUserMax, &cfg.LoginUserMax},
		{EnvLoginAddrMax, &cfg.LoginAddrMax},
	}
	for _, it := range ints {
		if v := env(it.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Config{}, autherr.Config(op, it.key)
			}
			*it.dst = n
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{EnvLoginUserWindow, &cfg.LoginUserWindow},
		{EnvLoginAddrWindow, &cfg.LoginAddrWindow},
	}
	for _, d := range durs {
		if v := env(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed <= 0 {
				return Config{}, autherr.Config(op, d.key)
			}
			*d.dst = parsed
		}
	}

	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }
