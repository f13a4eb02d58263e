package apiclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAuthExpired indicates a 401 response that survived the one allowed
// credential refresh attempt. The host should route the user back through
// authentication.
var ErrAuthExpired = errors.New("authentication expired")

// NetworkError represents a failure where no response reached the server:
// connection refused, DNS failure, or an abort before any response.
// The host should present it as a retryable failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a client-side deadline exceeded before the server
// responded. The host should present it as a retryable failure.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %v", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// HTTPError represents a non-2xx response from the server.
// Message carries the human-readable message/error field from the response
// body when one was present; Body carries the raw bytes.
type HTTPError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// IsTimeout reports whether the error is a client-side timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// IsAuthExpired reports whether the error means the session is no longer valid.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsRetryable reports whether the host may usefully retry the call.
// Network and timeout failures are retryable; authentication expiry and
// server-rejected requests are not.
func IsRetryable(err error) bool {
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return true
	}
	return IsTimeout(err)
}
