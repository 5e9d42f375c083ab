package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrBodySize bounds how much of an unexpected response ends up in
// UnexpectedStatusError.Body.
const maxErrBodySize = 4 << 10

// execFn consumes a response whose status was expected.
type execFn func(response *http.Response) error

var (
	// ErrUnexpectedStatusCode is wrapped by every [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] for 401 and 403.
	ErrAuthFailure = errors.New("auth failure")
)

// UnexpectedStatusError describes a response whose status the caller did
// not ask for. RetryAfter holds the server's Retry-After hint on 429 and
// 503 responses and is zero otherwise.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func newStatusError(resp *http.Response, body []byte) *UnexpectedStatusError {
	sentinel := ErrUnexpectedStatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
	}

	e := UnexpectedStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Err:        sentinel,
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}

	return &e
}

func (e *UnexpectedStatusError) Error() string {
	msg := fmt.Sprintf("%v: %d", e.Err, e.StatusCode)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %v", e.RetryAfter)
	}
	return msg + ", body: " + e.Body
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}

// RetryDelay lets retry.Do wait at least as long as the server asked.
func (e *UnexpectedStatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// parseRetryAfter reads either form of the header: delay seconds or an
// HTTP date. Anything unparseable or already past yields zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}

	return 0
}
