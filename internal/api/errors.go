package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the statuses callers treat differently. A
// *StatusError unwraps to one of these when its code matches.
var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string // "detail" or "error" field of the body, or the raw body
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// Unwrap maps 401, 403 and 404 to their sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Temporary reports whether the request may succeed if retried later:
// transport failures and 5xx responses. Auth decisions must not be made
// on temporary errors.
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
