package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes an HTTP error returned by the Cognigy platform.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Temporary reports whether the error may succeed on retry. Server errors
// and rate limiting qualify; client errors never do.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	return e.Status >= 500 && e.Status < 600
}

// StatusOf extracts the HTTP status from an error chain, or 0 when the error
// did not originate from a platform response.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsConflict reports whether the error is an HTTP 409, which the snapshot
// packaging endpoint returns while a previous packaging task is still active.
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}
