package modelprovider

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ThrottledError is returned when the API responds with HTTP 429 (Too Many
// Requests). It carries an optional RetryAfter duration parsed from the
// Retry-After header. Throttled calls are safe to retry after backing off.
type ThrottledError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("throttled (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("throttled: %s", e.Body)
}

// UnavailableError is returned for transient failures: connection errors,
// client-side timeouts, and 5xx responses. Retrying later may succeed.
type UnavailableError struct {
	Status int    // HTTP status when one was received, else 0.
	Body   string // Response body when one was received.
	Err    error  // Transport error when the request never completed.
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider unavailable: %v", e.Err)
	}
	return fmt.Sprintf("provider unavailable (status %d): %s", e.Status, e.Body)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RejectedError is returned when the API permanently refuses a request
// (auth failures, malformed input, content policy). Retrying the same
// request will not succeed.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.Status, e.Body)
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
		return 0
	}
	return 0
}
