// Package autherr defines the error taxonomy shared by warden's auth components.
//
// Callers classify with errors.Is against the four kinds. The sub-reason carried by Error
// is for audit events and logs only and must never reach a response body.
package autherr

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrInvalidCredentials covers unknown principals and wrong secrets.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers malformed, expired, revoked, blacklisted and reused tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrStorage is returned when a durable store is unavailable or timed out. It is the only
	// retryable kind.
	ErrStorage = errors.New("storage unavailable")

	// ErrConfig is returned for invalid configuration at startup.
	ErrConfig = errors.New("invalid config")
)

// Internal sub-reasons recorded in audit outcomes.
const (
	ReasonMalformed        = "malformed"
	ReasonNotFound         = "not_found"
	ReasonExpired          = "expired"
	ReasonRevoked          = "revoked"
	ReasonReused           = "reused"
	ReasonOwnerMismatch    = "owner_mismatch"
	ReasonBlacklisted      = "blacklisted"
	ReasonUnknownPrincipal = "unknown_principal"
	ReasonBadSecret        = "bad_secret"
	ReasonTimeout          = "timeout"
	ReasonUnavailable      = "unavailable"
)

// Error is a typed operation error: Kind is one of the sentinel kinds, Reason is the internal
// sub-reason and Err the optional underlying cause.
type Error struct {
	Op     string
	Kind   error
	Reason string
	Err    error
}

func (e Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidToken builds an ErrInvalidToken error with a sub-reason.
func InvalidToken(op, reason string) error {
	return Error{Op: op, Kind: ErrInvalidToken, Reason: reason}
}

// InvalidCredentials builds an ErrInvalidCredentials error with a sub-reason.
func InvalidCredentials(op, reason string) error {
	return Error{Op: op, Kind: ErrInvalidCredentials, Reason: reason}
}

// Config builds an ErrConfig error naming the offending setting.
func Config(op, setting string) error {
	return Error{Op: op, Kind: ErrConfig, Reason: setting}
}

// Storage wraps a store failure as ErrStorage. Errors that are already classified pass through
// unchanged, and nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidCredentials) {
		return err
	}
	reason := ReasonUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = ReasonTimeout
	}
	return Error{Op: op, Kind: ErrStorage, Reason: reason, Err: err}
}

// ReasonOf returns the sub-reason of the first Error in err's chain, or "" if none.
func ReasonOf(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Retryable reports whether the caller may retry with the same input.
func Retryable(err error) bool { return errors.Is(err, ErrStorage) }
