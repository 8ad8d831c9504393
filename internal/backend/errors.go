package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned when no valid token can be obtained, or the
// server still rejects the request after one refresh.
var ErrUnauthenticated = errors.New("unauthenticated")

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
