// Package audit records security-relevant events for forensics and throttling.
//
// Recording is fire-and-forget: Recorder.Record never blocks or fails the caller. Events for
// one owner, and login attempts for one principal, are written in the order they were recorded.
package audit

import (
	"math"
	"strings"
	"time"
)

// Outcome strings written by warden. Outcomes are free text; consumers classify them with
// IsSuccess / IsFailure rather than by exact match.
const (
	OutcomeLoginSuccess   = "login success"
	OutcomeLoginFailed    = "login failed"
	OutcomeLoginThrottled = "login throttled"
	OutcomeRefreshSuccess = "refresh success"
	OutcomeRefreshFailed  = "refresh failed"
	OutcomeLogoutSuccess  = "logout success"
	OutcomeAccessDenied   = "access failed"
)

// Failed returns base with the internal reason appended ("refresh failed: reused").
func Failed(base, reason string) string {
	if reason == "" {
		return base
	}
	return base + ": " + reason
}

// IsSuccess reports whether outcome reads as a success.
func IsSuccess(outcome string) bool {
	return strings.Contains(strings.ToLower(outcome), "success")
}

// IsFailure reports whether outcome reads as a failure.
func IsFailure(outcome string) bool {
	return strings.Contains(strings.ToLower(outcome), "fail")
}

// Event is one append-only audit row.
type Event struct {
	ID             string    `json:"id"`
	OwnerID        *string   `json:"owner_id,omitempty"`
	PrincipalName  string    `json:"principal_name"`
	Method         string    `json:"method"`
	Endpoint       string    `json:"endpoint"`
	Outcome        string    `json:"outcome"`
	StatusCode     int       `json:"status_code"`
	ErrorDetail    *string   `json:"error_detail,omitempty"`
	ClientAddress  string    `json:"client_address"`
	ClientAgent    string    `json:"client_agent"`
	CorrelationID  string    `json:"correlation_id"`
	DurationMillis int64     `json:"duration_millis"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Owner returns the owner id or "".
func (e Event) Owner() string {
	if e.OwnerID == nil {
		return ""
	}
	return *e.OwnerID
}

// orderKey groups events whose relative write order must be kept. Login attempts carry the
// principal name whether or not they succeeded, so they are keyed on it; a failed attempt
// does not know the owner id. Everything else is keyed on the owner.
func (e Event) orderKey() string {
	if e.PrincipalName != "" && (e.OwnerID == nil || strings.HasPrefix(strings.ToLower(e.Outcome), "login")) {
		return strings.ToLower(e.PrincipalName)
	}
	return e.Owner()
}

// Filter narrows Query and Count. Zero fields match everything. Patterns match
// case-insensitive substrings; the time range is [From, To).
type Filter struct {
	OwnerID         string
	PrincipalName   string
	Method          string
	OutcomePattern  string
	EndpointPattern string
	ClientAddress   string
	From            time.Time
	To              time.Time
}

func (f Filter) matches(e Event) bool {
	if f.OwnerID != "" && e.Owner() != f.OwnerID {
		return false
	}
	if f.PrincipalName != "" && e.PrincipalName != f.PrincipalName {
		return false
	}
	if f.Method != "" && !strings.EqualFold(e.Method, f.Method) {
		return false
	}
	if f.OutcomePattern != "" && !containsFold(e.Outcome, f.OutcomePattern) {
		return false
	}
	if f.EndpointPattern != "" && !containsFold(e.Endpoint, f.EndpointPattern) {
		return false
	}
	if f.ClientAddress != "" && e.ClientAddress != f.ClientAddress {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Page bounds. MaxPage keeps Page*Size inside int for every valid size.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	MaxPage         = math.MaxInt / MaxPageSize
)

// PageRequest selects a zero-based page.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request into valid bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int { return p.Page * p.Size }

// Page is one page of results, newest first.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPage assembles a Page from a slice and the total row count.
func NewPage[T any](items []T, req PageRequest, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{Items: items, Page: req.Page, Size: req.Size, TotalItems: total, TotalPages: pages}
}
