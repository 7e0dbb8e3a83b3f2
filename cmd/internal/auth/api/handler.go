// Package api exposes the authentication flows and operator views over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/flow"
	"warden/cmd/internal/auth/presence"
	"warden/cmd/internal/clock"
)

// Flows runs the authentication flows. *flow.Service implements it.
type Flows interface {
	Login(ctx context.Context, username, secret string, req flow.Request) (flow.Pair, error)
	Refresh(ctx context.Context, secret string, req flow.Request) (flow.Pair, error)
	Logout(ctx context.Context, in flow.LogoutInput, req flow.Request) flow.LogoutResult
	Authenticate(ctx context.Context, bearer string, req flow.Request) (access.Claims, error)
}

// AuditReader reads and trims the audit trail. *audit.Recorder implements it.
type AuditReader interface {
	Query(ctx context.Context, f audit.Filter, p audit.PageRequest) (audit.Page[audit.Event], error)
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

// Deps are the collaborators of a Handler. Log and Clock are optional.
type Deps struct {
	Log            *slog.Logger
	Flows          Flows
	Registry       *presence.Registry
	Audit          AuditReader
	SessionTimeout time.Duration
	Clock          clock.Clock
}

// Handler wires HTTP endpoints to the flow service and the operator views.
type Handler struct {
	log   *slog.Logger
	cfg   Config
	clock clock.Clock

	flows          Flows
	registry       *presence.Registry
	audit          AuditReader
	sessionTimeout time.Duration

	originPatterns []string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, d Deps) (*Handler, error) {
	if d.Flows == nil {
		return nil, errors.New("api: nil flows")
	}
	if d.Registry == nil {
		return nil, errors.New("api: nil registry")
	}
	if d.Audit == nil {
		return nil, errors.New("api: nil audit reader")
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 15 * time.Second
	}
	return &Handler{
		log:            log,
		cfg:            cfg,
		clock:          clock.OrSystem(d.Clock),
		flows:          d.Flows,
		registry:       d.Registry,
		audit:          d.Audit,
		sessionTimeout: d.SessionTimeout,
		originPatterns: deriveOriginPatterns(cfg.StreamOrigins),
	}, nil
}

// Register wires the routes onto r.
func (h *Handler) Register(r *mux.Router) {
	if h == nil || r == nil {
		return
	}
	r.HandleFunc("/tokens", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/tokens", h.handleRefresh).Methods(http.MethodPut)
	r.HandleFunc("/tokens", h.handleLogout).Methods(http.MethodDelete)

	r.Handle("/sessions", h.admin(h.handleSessionList)).Methods(http.MethodGet)
	r.Handle("/sessions/count", h.admin(h.handleSessionCount)).Methods(http.MethodGet)
	r.Handle("/sessions/sweep", h.admin(h.handleSessionSweep)).Methods(http.MethodPost)
	r.Handle("/sessions/stream", h.admin(h.handleSessionStream)).Methods(http.MethodGet)
	r.Handle("/audit", h.admin(h.handleAuditQuery)).Methods(http.MethodGet)
	r.Handle("/audit", h.admin(h.handleAuditCleanup)).Methods(http.MethodDelete)
}

func (h *Handler) admin(fn http.HandlerFunc) http.Handler { return h.requireAdmin(fn) }

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	pair, err := h.flows.Login(r.Context(), req.Username, req.Password, h.requestInfo(r))
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	h.writePair(w, pair, h.shouldUseWebCookieTransport(req.Platform))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
	}
	secret := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok && secret == "" {
		fromCookie = true
		secret = cookieToken
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	pair, err := h.flows.Refresh(r.Context(), secret, h.requestInfo(r))
	if err != nil {
		if fromCookie && errors.Is(err, autherr.ErrInvalidToken) {
			h.clearWebSessionCookies(w)
		}
		h.writeFlowError(w, err)
		return
	}
	h.writePair(w, pair, fromCookie || h.shouldUseWebCookieTransport(req.Platform))
}

// handleLogout always answers 200. A body that cannot be read revokes nothing.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			h.log.Info("auth.logout.body.ignored", "err", err)
			req = logoutRequest{}
		}
	}
	in := flow.LogoutInput{
		AccessToken:  bearerToken(r),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		Everywhere:   req.Everywhere,
	}
	if in.RefreshToken == "" {
		if cookieToken, ok := h.refreshTokenFromCookie(r); ok && h.csrfDoubleSubmitValid(r) {
			in.RefreshToken = cookieToken
		}
	}

	h.flows.Logout(r.Context(), in, h.requestInfo(r))
	h.clearWebSessionCookies(w)
	writeJSON(w, http.StatusOK, logoutResponse{Status: "ok"})
}

// writePair answers with a credential pair. With cookies on, the refresh secret moves into
// an HttpOnly cookie and the CSRF token is echoed in a response header.
func (h *Handler) writePair(w http.ResponseWriter, p flow.Pair, useCookie bool) {
	resp := toTokenResponse(p, h.clock.Now())
	if useCookie {
		csrf, err := h.setWebSessionCookies(w, p.RefreshToken, p.RefreshExpiresAt)
		if err != nil {
			h.log.Error("auth.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		w.Header().Set(h.cfg.CSRFHeaderName, csrf)
		resp.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAdmin admits requests carrying a valid access token with the admin authority.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cl, err := h.flows.Authenticate(r.Context(), operatorToken(r), h.requestInfo(r))
		if err != nil {
			h.writeFlowError(w, err)
			return
		}
		if !cl.HasAuthority(identity.AuthorityAdmin) {
			writeError(w, http.StatusForbidden, "forbidden", "admin authority required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), cl)))
	})
}
