package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/flow"
)

type ctxKey int

const (
	correlationKey ctxKey = iota
	claimsKey
)

// CorrelationHeader carries the request correlation id in and out.
const CorrelationHeader = "X-Request-ID"

// WithCorrelationID stores id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

func withClaims(ctx context.Context, cl access.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, cl)
}

// ClaimsFrom returns the access claims of an authenticated operator request.
func ClaimsFrom(ctx context.Context) (access.Claims, bool) {
	cl, ok := ctx.Value(claimsKey).(access.Claims)
	return cl, ok
}

func (h *Handler) requestInfo(r *http.Request) flow.Request {
	addr := ""
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		addr = ip.String()
	}
	return flow.Request{
		Method:        r.Method,
		Endpoint:      r.URL.Path,
		ClientAgent:   strings.TrimSpace(r.UserAgent()),
		ClientAddress: addr,
		CorrelationID: CorrelationID(r.Context()),
		Started:       h.clock.Now(),
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// operatorToken also accepts ?access_token= on websocket upgrades, since browsers cannot set
// headers on them.
func operatorToken(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
