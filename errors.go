package macrolog

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSchemaConflict marks a log sheet whose header diverges from the expected schema.
// It is never retried and never migrated automatically.
var ErrSchemaConflict = errors.New("schema conflict")

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError reports an expired or invalid credential.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed (%d): %s", e.Status, e.Message)
}

// RateLimitError reports a throttled request. RetryAfter is zero when the service gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// StoreError reports a non-success response from the backing spreadsheet.
// Status is zero for conditions detected client-side, such as a schema conflict.
type StoreError struct {
	Status  int
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("sheets store error: %s", e.Message)
	}
	return fmt.Sprintf("sheets store error %d: %s", e.Status, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure reaching an external service.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: service unavailable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var (
		se *StoreError
		ae *AuthError
		re *RateLimitError
	)
	switch {
	case errors.As(err, &ae):
		return ae.Status
	case errors.As(err, &re):
		return http.StatusTooManyRequests
	case errors.As(err, &se):
		return se.Status
	}
	return 0
}

// IsAuthError reports whether err means the credential was rejected (HTTP 401).
func IsAuthError(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return true
	}
	return StatusCode(err) == http.StatusUnauthorized
}

// IsRateLimited reports whether err means the request was throttled (HTTP 429).
func IsRateLimited(err error) bool {
	var re *RateLimitError
	if errors.As(err, &re) {
		return true
	}
	return StatusCode(err) == http.StatusTooManyRequests
}
