package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"warden/cmd/internal/auth/flow"
)

// unavailableRetryAfter is the hint sent with 503 answers.
const unavailableRetryAfter = 5 * time.Second

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	setRetryAfter(w, retryAfter)
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

func writeUnavailable(w http.ResponseWriter) {
	setRetryAfter(w, unavailableRetryAfter)
	writeError(w, http.StatusServiceUnavailable, "unavailable", "please retry later")
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10))
}

// writeFlowError answers with the status flow.HTTPStatus picks. Credential and token failures
// share one body so callers cannot tell which check failed.
func (h *Handler) writeFlowError(w http.ResponseWriter, err error) {
	switch flow.HTTPStatus(err) {
	case http.StatusUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
	case http.StatusTooManyRequests:
		var te flow.ThrottledError
		retry := time.Duration(0)
		if errors.As(err, &te) {
			retry = te.RetryAfter
		}
		writeRateLimited(w, retry)
	case http.StatusServiceUnavailable:
		writeUnavailable(w)
	default:
		h.log.Error("auth.internal.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
