package app

import "time"

// Config contains the runtime configuration loaded from environment variables. Component
// settings (tokens, audit, flows, HTTP boundary) are loaded by their own packages.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrateOnStart bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, WARDEN_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh secrets are stored
	// as HMAC digests.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// "username:password[:ROLE1|ROLE2]" entries separated by ';', created at startup.
	BootstrapPrincipals string

	// Registry entries idle longer than SessionTimeout are swept every SessionSweepInterval.
	SessionTimeout       time.Duration
	SessionSweepInterval time.Duration

	RefreshSweepInterval   time.Duration
	BlacklistPurgeInterval time.Duration
	AuditCleanupInterval   time.Duration

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("WARDEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("WARDEN_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("WARDEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WARDEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WARDEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WARDEN_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("WARDEN_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL:    EnvString("WARDEN_DATABASE_URL", ""),
		DBMaxConns:     EnvInt32("WARDEN_DB_MAX_CONNS", 10),
		DBMinConns:     EnvInt32("WARDEN_DB_MIN_CONNS", 0),
		MigrateOnStart: EnvBool("WARDEN_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("WARDEN_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("WARDEN_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("WARDEN_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("WARDEN_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("WARDEN_CORS_MAX_AGE_SECONDS", 600),

		BootstrapPrincipals: EnvString("WARDEN_BOOTSTRAP_PRINCIPALS", ""),

		SessionTimeout:         EnvDuration("WARDEN_SESSION_TIMEOUT", 30*time.Minute),
		SessionSweepInterval:   EnvDuration("WARDEN_SESSION_SWEEP_INTERVAL", 5*time.Minute),
		RefreshSweepInterval:   EnvDuration("WARDEN_REFRESH_SWEEP_INTERVAL", time.Hour),
		BlacklistPurgeInterval: EnvDuration("WARDEN_BLACKLIST_PURGE_INTERVAL", 5*time.Minute),
		AuditCleanupInterval:   EnvDuration("WARDEN_AUDIT_CLEANUP_INTERVAL", 24*time.Hour),

		MetricsEnabled: EnvBool("WARDEN_METRICS_ENABLED", true),
	}
}
