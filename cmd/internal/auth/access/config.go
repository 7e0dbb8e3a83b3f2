package access

import (
	"os"
	"strings"
	"time"

	"warden/cmd/internal/auth/autherr"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvCodec              = "WARDEN_ACCESS_CODEC"
	EnvTTL                = "WARDEN_ACCESS_TTL"
	EnvIssuer             = "WARDEN_ACCESS_ISSUER"
	EnvClockSkew          = "WARDEN_CLOCK_SKEW"
	EnvPasetoSecretKeyHex = "WARDEN_PASETO_V4_SECRET_KEY_HEX" // #nosec G101 -- env var name
	EnvJWTSigningKey      = "WARDEN_JWT_SIGNING_KEY"          // #nosec G101 -- env var name
	EnvBlacklistBackend   = "WARDEN_BLACKLIST_BACKEND"
	EnvRedisAddr          = "WARDEN_REDIS_ADDR"
)

// Codec and blacklist selectors.
const (
	CodecPaseto = "paseto"
	CodecJWT    = "jwt"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config controls access-token issuance and verification.
type Config struct {
	Codec     string
	TTL       time.Duration
	Issuer    string
	ClockSkew time.Duration

	PasetoSecretKeyHex string
	JWTSigningKey      []byte

	BlacklistBackend string
	RedisAddr        string
}

// DefaultConfig returns defaults without key material.
func DefaultConfig() Config {
	return Config{
		Codec:            CodecPaseto,
		TTL:              15 * time.Minute,
		Issuer:           "warden",
		ClockSkew:        30 * time.Second,
		BlacklistBackend: BackendMemory,
		RedisAddr:        "localhost:6379",
	}
}

// LoadConfigFromEnv reads access configuration. The key for the selected codec is required.
func LoadConfigFromEnv() (Config, error) {
	const op = "access.LoadConfigFromEnv"
	cfg := DefaultConfig()

	if v := env(EnvCodec); v != "" {
		cfg.Codec = strings.ToLower(v)
	}
	if cfg.Codec != CodecPaseto && cfg.Codec != CodecJWT {
		return Config{}, autherr.Config(op, EnvCodec)
	}

	if v := env(EnvTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > 24*time.Hour {
			return Config{}, autherr.Config(op, EnvTTL)
		}
		cfg.TTL = d
	}

	if v := env(EnvIssuer); v != "" {
		cfg.Issuer = v
	}

	if v := env(EnvClockSkew); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 5*time.Minute {
			return Config{}, autherr.Config(op, EnvClockSkew)
		}
		cfg.ClockSkew = d
	}

	switch cfg.Codec {
	case CodecPaseto:
		cfg.PasetoSecretKeyHex = env(EnvPasetoSecretKeyHex)
		if cfg.PasetoSecretKeyHex == "" {
			return Config{}, autherr.Config(op, EnvPasetoSecretKeyHex)
		}
	case CodecJWT:
		key := env(EnvJWTSigningKey)
		if len(key) < MinJWTKeyBytes {
			return Config{}, autherr.Config(op, EnvJWTSigningKey)
		}
		cfg.JWTSigningKey = []byte(key)
	}

	if v := env(EnvBlacklistBackend); v != "" {
		cfg.BlacklistBackend = strings.ToLower(v)
	}
	switch cfg.BlacklistBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return Config{}, autherr.Config(op, EnvBlacklistBackend)
	}
	if v := env(EnvRedisAddr); v != "" {
		cfg.RedisAddr = v
	}

	return cfg, nil
}

// NewCodec builds the codec selected by cfg.
func NewCodec(cfg Config) (Codec, error) {
	switch cfg.Codec {
	case CodecJWT:
		return NewJWTCodec(cfg.JWTSigningKey, cfg.Issuer, cfg.ClockSkew)
	case CodecPaseto, "":
		return NewPasetoCodec(cfg.PasetoSecretKeyHex, cfg.Issuer, cfg.ClockSkew)
	default:
		return nil, autherr.Config("access.NewCodec", EnvCodec)
	}
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }
