package pokedex

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors surfaced by the fetch pipeline.
var (
	// ErrRetryExhausted is returned when all retry attempts are used up.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrMalformedBody is returned when a 200 response does not contain the
	// expected JSON document. Treated as terminal.
	ErrMalformedBody = errors.New("malformed response body")

	// ErrQueueClosed is returned by Dequeue once a queue is closed and
	// drained. Workers treat it as a clean shutdown signal.
	ErrQueueClosed = errors.New("queue closed")
)

// StatusError carries a non-2xx HTTP status returned by the upstream API.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Terminal reports whether the status must not be retried. Not-found and all
// other 4xx responses except 429 are terminal; 429 and 5xx are transient.
func (e *StatusError) Terminal() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Retryable classifies an error from a fetch attempt. Transport failures,
// timeouts, 429 and 5xx statuses are retryable; not-found, other 4xx, and
// malformed bodies are terminal. Context cancellation is never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedBody) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Terminal()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Remaining transport-level failures (connection refused, DNS, EOF).
	return true
}
