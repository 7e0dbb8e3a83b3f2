package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// platformWeb selects the cookie transport for the refresh secret.
const platformWeb = "web"

// csrfTokenBytes is the entropy of the double-submit value.
const csrfTokenBytes = 32

func (h *Handler) shouldUseWebCookieTransport(platform string) bool {
	return h != nil && h.cfg.WebRefreshCookieEnabled && strings.EqualFold(platform, platformWeb)
}

// cookie builds a cookie scoped by the handler's path, domain and SameSite settings.
// A zero expiry produces a deletion cookie.
func (h *Handler) cookie(name, value string, exp time.Time, httpOnly bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
	if exp.IsZero() {
		c.Value = ""
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
	}
	return c
}

// setWebSessionCookies stores the refresh secret in an HttpOnly cookie next to a fresh
// script-readable CSRF cookie, and returns the CSRF value.
func (h *Handler) setWebSessionCookies(w http.ResponseWriter, refreshSecret string, exp time.Time) (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	csrf := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, h.cookie(h.cfg.RefreshCookieName, refreshSecret, exp, true))
	http.SetCookie(w, h.cookie(h.cfg.CSRFCookieName, csrf, exp, false))
	return csrf, nil
}

func (h *Handler) clearWebSessionCookies(w http.ResponseWriter) {
	if h == nil || !h.cfg.WebRefreshCookieEnabled {
		return
	}
	http.SetCookie(w, h.cookie(h.cfg.RefreshCookieName, "", time.Time{}, true))
	http.SetCookie(w, h.cookie(h.cfg.CSRFCookieName, "", time.Time{}, false))
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	if h == nil || !h.cfg.WebRefreshCookieEnabled {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	v := h.cookieValue(r, h.cfg.RefreshCookieName)
	return v, v != ""
}

// csrfDoubleSubmitValid reports whether the CSRF cookie matches the CSRF header.
func (h *Handler) csrfDoubleSubmitValid(r *http.Request) bool {
	cv := h.cookieValue(r, h.cfg.CSRFCookieName)
	if cv == "" {
		return false
	}
	hv := strings.TrimSpace(r.Header.Get(h.cfg.CSRFHeaderName))
	return len(hv) == len(cv) && subtle.ConstantTimeCompare([]byte(cv), []byte(hv)) == 1
}
