package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"warden/cmd/internal/auth/audit"
)

func (h *Handler) handleSessionList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

func (h *Handler) handleSessionCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, countResponse{Count: h.registry.Count()})
}

// handleSessionSweep evicts idle registry entries. ?timeout= overrides the configured timeout.
func (h *Handler) handleSessionSweep(w http.ResponseWriter, r *http.Request) {
	timeout := h.sessionTimeout
	if raw := strings.TrimSpace(r.URL.Query().Get("timeout")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "timeout must be a positive duration")
			return
		}
		timeout = d
	}
	if timeout <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "timeout is required")
		return
	}

	removed := h.registry.Sweep(timeout)
	writeJSON(w, http.StatusOK, sweepResponse{
		Removed:   removed,
		Remaining: h.registry.Count(),
		Timeout:   timeout.String(),
	})
}

func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	f, p, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	page, err := h.audit.Query(r.Context(), f, p)
	if err != nil {
		h.log.Error("audit.query.fail", "err", err)
		writeUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("retention_days")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "retention_days must be an integer")
		return
	}
	removed, err := h.audit.Cleanup(r.Context(), days)
	switch {
	case errors.Is(err, audit.ErrInvalidRetention):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		h.log.Error("audit.cleanup.fail", "err", err)
		writeUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Removed: removed, RetentionDays: days})
}

func parseAuditQuery(q url.Values) (audit.Filter, audit.PageRequest, error) {
	f := audit.Filter{
		OwnerID:         strings.TrimSpace(q.Get("owner_id")),
		PrincipalName:   strings.TrimSpace(q.Get("principal")),
		Method:          strings.TrimSpace(q.Get("method")),
		OutcomePattern:  strings.TrimSpace(q.Get("outcome")),
		EndpointPattern: strings.TrimSpace(q.Get("endpoint")),
		ClientAddress:   strings.TrimSpace(q.Get("client_address")),
	}
	var err error
	if f.From, err = parseTimeParam(q, "from"); err != nil {
		return audit.Filter{}, audit.PageRequest{}, err
	}
	if f.To, err = parseTimeParam(q, "to"); err != nil {
		return audit.Filter{}, audit.PageRequest{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return audit.Filter{}, audit.PageRequest{}, errors.New("from must be before to")
	}

	var p audit.PageRequest
	if p.Page, err = parseIntParam(q, "page"); err != nil {
		return audit.Filter{}, audit.PageRequest{}, err
	}
	if p.Page > audit.MaxPage {
		return audit.Filter{}, audit.PageRequest{}, errors.New("page is out of range")
	}
	if p.Size, err = parseIntParam(q, "size"); err != nil {
		return audit.Filter{}, audit.PageRequest{}, err
	}
	return f, p.Normalize(), nil
}

func parseTimeParam(q url.Values, key string) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(key + " must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func parseIntParam(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
