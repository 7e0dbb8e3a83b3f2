package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/presence"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/clock"
)

// Flow names used for metrics.
const (
	FlowLogin   = "login"
	FlowRefresh = "refresh"
	FlowLogout  = "logout"
)

// ErrThrottled is returned by Login while too many recent failures are on record.
var ErrThrottled = errors.New("too many failed attempts")

// ThrottledError carries the suggested wait. errors.Is(err, ErrThrottled) matches it.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrThrottled, e.RetryAfter)
}

// Is reports ErrThrottled.
func (e ThrottledError) Is(target error) bool { return target == ErrThrottled }

// Verifier checks credentials and resolves principals by id.
type Verifier interface {
	Verify(ctx context.Context, key, secret string) (identity.Principal, error)
	Lookup(ctx context.Context, id string) (identity.Principal, error)
}

// Auditor is the part of audit.Recorder the flows use.
type Auditor interface {
	Record(e audit.Event) bool
	Count(ctx context.Context, f audit.Filter) (int, error)
}

// Metrics counts flow results.
type Metrics interface {
	Flow(flow, result string)
}

type nopMetrics struct{}

func (nopMetrics) Flow(string, string) {}

// Deps are the collaborators of a Service. Metrics, Log and Clock are optional.
type Deps struct {
	Log      *slog.Logger
	Verifier Verifier
	Sessions *session.Service
	Guard    *access.Guard
	Registry *presence.Registry
	Audit    Auditor
	Metrics  Metrics
	Clock    clock.Clock
}

// Request describes the client call a flow runs for. It only feeds the audit trail.
type Request struct {
	Method        string
	Endpoint      string
	ClientAgent   string
	ClientAddress string
	CorrelationID string
	Started       time.Time
}

// Pair is the credential pair handed to a client after login or refresh.
type Pair struct {
	OwnerID          string
	DisplayName      string
	Authorities      []string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LogoutInput names what to revoke. Every field is optional.
type LogoutInput struct {
	AccessToken  string
	RefreshToken string
	Everywhere   bool
}

// LogoutResult reports what a logout did. Callers respond with success regardless.
type LogoutResult struct {
	OwnerID        string
	AccessRevoked  bool
	RefreshRevoked int
}

// Service runs the authentication flows.
type Service struct {
	cfg      Config
	log      *slog.Logger
	verifier Verifier
	sessions *session.Service
	guard    *access.Guard
	registry *presence.Registry
	audit    Auditor
	metrics  Metrics
	clock    clock.Clock
}

// NewService validates deps and builds a Service.
func NewService(cfg Config, d Deps) (*Service, error) {
	switch {
	case d.Verifier == nil:
		return nil, errors.New("flow: nil verifier")
	case d.Sessions == nil:
		return nil, errors.New("flow: nil session service")
	case d.Guard == nil:
		return nil, errors.New("flow: nil access guard")
	case d.Registry == nil:
		return nil, errors.New("flow: nil session registry")
	case d.Audit == nil:
		return nil, errors.New("flow: nil audit recorder")
	}
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	return &Service{
		cfg:      cfg,
		log:      d.Log,
		verifier: d.Verifier,
		sessions: d.Sessions,
		guard:    d.Guard,
		registry: d.Registry,
		audit:    d.Audit,
		metrics:  d.Metrics,
		clock:    clock.OrSystem(d.Clock),
	}, nil
}

// Login verifies username and secret and issues a fresh credential pair.
//
// Unknown principals and wrong secrets both fail with autherr.ErrInvalidCredentials. Store
// outages fail with autherr.ErrStorage so the caller can answer 503 instead of pretending success.
func (s *Service) Login(ctx context.Context, username, secret string, req Request) (Pair, error) {
	const op = "flow.Login"
	key := identity.NormalizeUsername(username)
	if key == "" || secret == "" {
		err := autherr.InvalidCredentials(op, autherr.ReasonMalformed)
		s.record(req, "", key, audit.Failed(audit.OutcomeLoginFailed, autherr.ReasonMalformed), err)
		s.metrics.Flow(FlowLogin, ResultFor(err))
		return Pair{}, err
	}

	if err := s.checkThrottle(ctx, key, req.ClientAddress); err != nil {
		s.record(req, "", key, audit.OutcomeLoginThrottled, err)
		s.metrics.Flow(FlowLogin, ResultFor(err))
		return Pair{}, err
	}

	p, err := s.verifier.Verify(ctx, key, secret)
	if err != nil {
		s.record(req, "", key, audit.Failed(audit.OutcomeLoginFailed, reasonOf(err)), err)
		s.metrics.Flow(FlowLogin, ResultFor(err))
		if errors.Is(err, autherr.ErrStorage) {
			s.log.Error("auth.login.verify.fail", "err", err)
		}
		return Pair{}, err
	}

	pair, err := s.issue(ctx, p)
	if err != nil {
		s.log.Error("auth.login.issue.fail", "err", err, "owner_id", p.ID)
		s.record(req, p.ID, key, audit.Failed(audit.OutcomeLoginFailed, reasonOf(err)), err)
		s.metrics.Flow(FlowLogin, ResultFor(err))
		return Pair{}, err
	}

	s.registry.Touch(p.ID, p.DisplayName, req.ClientAgent, req.ClientAddress)
	s.record(req, p.ID, key, audit.OutcomeLoginSuccess, nil)
	s.metrics.Flow(FlowLogin, ResultFor(nil))
	return pair, nil
}

func (s *Service) issue(ctx context.Context, p identity.Principal) (Pair, error) {
	refresh, secret, err := s.sessions.Create(ctx, p.ID)
	if err != nil {
		return Pair{}, err
	}
	signed, claims, err := s.guard.Issue(p.ID, p.Authorities)
	if err != nil {
		if _, rerr := s.sessions.RevokeWithReason(ctx, secret, session.ReasonAdmin); rerr != nil {
			s.log.Warn("auth.issue.rollback.fail", "err", rerr, "owner_id", p.ID)
		}
		return Pair{}, err
	}
	return Pair{
		OwnerID:          p.ID,
		DisplayName:      p.DisplayName,
		Authorities:      claims.Authorities,
		AccessToken:      signed,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     secret,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh secret and issues a new access token with the principal's current
// authorities. Every token failure is reported as autherr.ErrInvalidToken; the exact reason only
// reaches the audit trail.
//
// Presenting an already rotated secret is treated as theft: with RevokeOnReuse set, every
// refresh token of the owner is revoked and the owner leaves the registry.
func (s *Service) Refresh(ctx context.Context, secret string, req Request) (Pair, error) {
	next, nextSecret, err := s.sessions.Rotate(ctx, secret, "")
	if err != nil {
		owner := ""
		result := ResultFor(err)
		if autherr.ReasonOf(err) == autherr.ReasonReused {
			owner = s.handleReuse(ctx, secret)
			result = ResultReuse
		}
		s.record(req, owner, "", audit.Failed(audit.OutcomeRefreshFailed, reasonOf(err)), err)
		s.metrics.Flow(FlowRefresh, result)
		return Pair{}, err
	}

	p, err := s.verifier.Lookup(ctx, next.OwnerID)
	if err != nil {
		// The successor is useless without a live principal.
		if _, rerr := s.sessions.RevokeWithReason(ctx, nextSecret, session.ReasonAdmin); rerr != nil {
			s.log.Warn("auth.refresh.rollback.fail", "err", rerr, "owner_id", next.OwnerID)
		}
		s.record(req, next.OwnerID, "", audit.Failed(audit.OutcomeRefreshFailed, reasonOf(err)), err)
		s.metrics.Flow(FlowRefresh, ResultFor(err))
		return Pair{}, err
	}

	signed, claims, err := s.guard.Issue(p.ID, p.Authorities)
	if err != nil {
		s.log.Error("auth.refresh.issue.fail", "err", err, "owner_id", p.ID)
		s.record(req, p.ID, p.Username, audit.Failed(audit.OutcomeRefreshFailed, reasonOf(err)), err)
		s.metrics.Flow(FlowRefresh, ResultFor(err))
		return Pair{}, err
	}

	s.registry.Touch(p.ID, p.DisplayName, req.ClientAgent, req.ClientAddress)
	s.record(req, p.ID, p.Username, audit.OutcomeRefreshSuccess, nil)
	s.metrics.Flow(FlowRefresh, ResultFor(nil))

	return Pair{
		OwnerID:          p.ID,
		DisplayName:      p.DisplayName,
		Authorities:      claims.Authorities,
		AccessToken:      signed,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     nextSecret,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// handleReuse applies the reuse policy and returns the owner of secret, if known.
func (s *Service) handleReuse(ctx context.Context, secret string) string {
	owner, found, err := s.sessions.Owner(ctx, secret)
	if err != nil || !found {
		s.log.Warn("auth.refresh.reuse.owner_unknown", "err", err)
		return ""
	}
	if !s.cfg.RevokeOnReuse {
		s.log.Warn("auth.refresh.reuse", "owner_id", owner)
		return owner
	}

	n, err := s.sessions.RevokeAllWithReason(ctx, owner, session.ReasonReuse)
	if err != nil {
		s.log.Error("auth.refresh.reuse.revoke.fail", "err", err, "owner_id", owner)
	}
	s.registry.Remove(owner)
	s.log.Warn("auth.refresh.reuse", "owner_id", owner, "revoked", n)
	return owner
}

// Logout revokes whatever in is able to identify and never fails. Internal errors are logged
// and recorded in the audit event.
//
// With Everywhere set, every refresh token of the owner is revoked. The owner is taken from the
// refresh secret when it resolves, otherwise from a valid access token.
func (s *Service) Logout(ctx context.Context, in LogoutInput, req Request) LogoutResult {
	var (
		res      LogoutResult
		failures []error
	)

	accessOwner := ""
	if in.AccessToken != "" {
		if cl, err := s.guard.Validate(ctx, in.AccessToken); err == nil {
			accessOwner = cl.Subject
		}
		revoked, err := s.guard.Revoke(ctx, in.AccessToken)
		if err != nil {
			failures = append(failures, err)
		}
		res.AccessRevoked = revoked
	}

	refreshOwner := ""
	if in.RefreshToken != "" {
		owner, _, err := s.sessions.Owner(ctx, in.RefreshToken)
		if err != nil {
			failures = append(failures, err)
		}
		refreshOwner = owner
	}

	res.OwnerID = refreshOwner
	if res.OwnerID == "" {
		res.OwnerID = accessOwner
	}

	switch {
	case in.Everywhere && res.OwnerID != "":
		n, err := s.sessions.RevokeAllWithReason(ctx, res.OwnerID, session.ReasonLogoutAll)
		if err != nil {
			failures = append(failures, err)
		}
		res.RefreshRevoked = n
	case in.RefreshToken != "":
		ok, err := s.sessions.RevokeWithReason(ctx, in.RefreshToken, session.ReasonLogout)
		if err != nil {
			failures = append(failures, err)
		}
		if ok {
			res.RefreshRevoked = 1
		}
	}

	if res.OwnerID != "" {
		s.registry.Remove(res.OwnerID)
	}

	err := errors.Join(failures...)
	if err != nil {
		s.log.Warn("auth.logout.partial", "err", err, "owner_id", res.OwnerID)
	}
	s.recordStatus(req, res.OwnerID, "", audit.OutcomeLogoutSuccess, http.StatusOK, err)
	s.metrics.Flow(FlowLogout, ResultSuccess)
	return res
}

// Authenticate validates a bearer access token and refreshes the owner's registry entry.
func (s *Service) Authenticate(ctx context.Context, bearer string, req Request) (access.Claims, error) {
	cl, err := s.guard.Validate(ctx, bearer)
	if err != nil {
		if s.cfg.AuditAccessDenied {
			s.record(req, "", "", audit.Failed(audit.OutcomeAccessDenied, reasonOf(err)), err)
		}
		return access.Claims{}, err
	}
	s.registry.Touch(cl.Subject, "", req.ClientAgent, req.ClientAddress)
	return cl, nil
}

// checkThrottle fails open when the audit store cannot be read: the recorder must never be the
// reason a login fails.
func (s *Service) checkThrottle(ctx context.Context, principal, addr string) error {
	now := s.clock.Now()
	checks := []struct {
		max    int
		window time.Duration
		filter audit.Filter
		skip   bool
	}{
		{s.cfg.LoginUserMax, s.cfg.LoginUserWindow, audit.Filter{PrincipalName: principal}, principal == ""},
		{s.cfg.LoginAddrMax, s.cfg.LoginAddrWindow, audit.Filter{ClientAddress: addr}, addr == ""},
	}
	for _, c := range checks {
		if c.skip || c.max <= 0 || c.window <= 0 {
			continue
		}
		c.filter.OutcomePattern = audit.OutcomeLoginFailed
		c.filter.From = now.Add(-c.window)

		n, err := s.audit.Count(ctx, c.filter)
		if err != nil {
			s.log.Warn("auth.login.throttle.fail", "err", err)
			continue
		}
		if n >= c.max {
			return ThrottledError{RetryAfter: c.window}
		}
	}
	return nil
}

func (s *Service) record(req Request, ownerID, principal, outcome string, cause error) {
	s.recordStatus(req, ownerID, principal, outcome, HTTPStatus(cause), cause)
}

func (s *Service) recordStatus(req Request, ownerID, principal, outcome string, status int, cause error) {
	now := s.clock.Now()
	e := audit.Event{
		PrincipalName: principal,
		Method:        req.Method,
		Endpoint:      req.Endpoint,
		Outcome:       outcome,
		StatusCode:    status,
		ClientAddress: req.ClientAddress,
		ClientAgent:   req.ClientAgent,
		CorrelationID: req.CorrelationID,
		OccurredAt:    now,
	}
	if ownerID != "" {
		e.OwnerID = &ownerID
	}
	if cause != nil {
		detail := cause.Error()
		e.ErrorDetail = &detail
	}
	if !req.Started.IsZero() {
		e.DurationMillis = now.Sub(req.Started).Milliseconds()
	}
	s.audit.Record(e)
}

func reasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrThrottled):
		return "throttled"
	}
	if r := autherr.ReasonOf(err); r != "" {
		return r
	}
	return "internal"
}

// Metric results.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultThrottled   = "throttled"
	ResultUnavailable = "unavailable"
	ResultReuse       = "reuse"
)

// ResultFor classifies err for metrics.
func ResultFor(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrThrottled):
		return ResultThrottled
	case autherr.Retryable(err):
		return ResultUnavailable
	default:
		return ResultFailure
	}
}

// HTTPStatus maps a flow error onto the status the boundary answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, autherr.ErrInvalidCredentials), errors.Is(err, autherr.ErrInvalidToken):
		return http.StatusUnauthorized
	case autherr.Retryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
