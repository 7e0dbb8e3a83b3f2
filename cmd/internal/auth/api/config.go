package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls HTTP boundary behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Session stream (GET /sessions/stream).
	StreamInterval time.Duration
	StreamOrigins  []string

	// Browser clients may keep the refresh secret in an HttpOnly cookie guarded by a
	// double-submit CSRF token instead of in the response body.
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// LoadConfigFromEnv loads boundary config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:     envBool("WARDEN_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("WARDEN_AUTH_MAX_BODY_BYTES", 64<<10),
		StreamInterval: envDuration("WARDEN_STREAM_INTERVAL", 15*time.Second),
		StreamOrigins:  envCSV("WARDEN_STREAM_ALLOWED_ORIGINS", "localhost,127.0.0.1"),

		WebRefreshCookieEnabled: envBool("WARDEN_AUTH_WEB_REFRESH_COOKIE", false),
		RefreshCookieName:       envString("WARDEN_AUTH_REFRESH_COOKIE_NAME", "warden_refresh"),
		CSRFCookieName:          envString("WARDEN_AUTH_CSRF_COOKIE_NAME", "warden_csrf"),
		CSRFHeaderName:          envString("WARDEN_AUTH_CSRF_HEADER_NAME", "X-CSRF-Token"),
		CookiePath:              envString("WARDEN_AUTH_COOKIE_PATH", "/tokens"),
		CookieDomain:            envString("WARDEN_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:            envBool("WARDEN_AUTH_COOKIE_SECURE", true),
		CookieSameSite:          parseSameSite(envString("WARDEN_AUTH_COOKIE_SAMESITE", "strict")),
	}

	// A shared name would let the readable CSRF cookie overwrite the refresh cookie.
	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		cfg.CSRFCookieName = cfg.RefreshCookieName + "_csrf"
	}
	// Browsers reject SameSite=None without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key, def string) []string {
	raw := envString(key, def)
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
