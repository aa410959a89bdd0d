package transport

import "fmt"

// AuthError is raised for 401/403 responses. Not retried.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("transport: auth error (status %d): %s", e.StatusCode, e.Detail)
}

// NotFoundError is raised for 404 responses. Not retried.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("transport: not found: %s", e.Detail) }

// RateLimitedError is raised for 429 responses and carries a retry-after
// hint when the server provided one. Retried at connect time.
type RateLimitedError struct {
	RetryAfterSeconds int
	Detail            string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("transport: rate limited (retry after %ds): %s", e.RetryAfterSeconds, e.Detail)
}

// TransientError is raised for 5xx responses. Retried at connect time.
type TransientError struct {
	StatusCode int
	Detail     string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transport: transient error (status %d): %s", e.StatusCode, e.Detail)
}

// PlatformError is raised for any other non-2xx status the platform returns.
type PlatformError struct {
	StatusCode int
	Detail     string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("transport: platform error (status %d): %s", e.StatusCode, e.Detail)
}

func isRetryable(err error) bool {
	switch err.(type) {
	case *TransientError, *RateLimitedError:
		return true
	default:
		return false
	}
}
