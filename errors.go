package nextcloud

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrExhausted indicates GetNext was called on a list whose last page
	// was not full.
	ErrExhausted = errors.New("nextcloud: no more data")
)

// AuthenticationError indicates the credential flow could not produce a
// usable access token.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("nextcloud: authentication failed: %s", e.Message)
}

// SecurityError indicates the anti-forgery state returned by the redirect
// did not match the state sent with the authorization request.
type SecurityError struct {
	Expected string
}

func (e *SecurityError) Error() string {
	return "nextcloud: redirect state does not match the request state"
}

// TransportError wraps a network-level failure (DNS, connect, TLS, timeout)
// before any HTTP status was received.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nextcloud: request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a protocol-level failure: an unsuccessful HTTP status or an
// ocs meta status of "failure". It carries the last request and response
// text for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
	Request    string
	Response   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nextcloud: API error %d: %s", e.StatusCode, e.Message)
}

// ValidationError indicates malformed local input (bad settings, an
// invalid list request, a path escaping its root).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("nextcloud: %s", e.Message)
}

// IsNotFound checks if the error is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsUnauthorized checks if the error is an API error with status 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	return false
}

// IsRateLimited checks if the error is an API error with status 429,
// meaning retries were exhausted while the server kept throttling.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
