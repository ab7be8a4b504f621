package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport covers network failures and any unexpected server response.
	ErrTransport = errors.New("remote transport error")
	// ErrUnauthorized matches 401 responses.
	ErrUnauthorized = errors.New("remote rejected credentials")
	// ErrForbidden matches 403 responses.
	ErrForbidden = errors.New("remote denied access")
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// Is lets callers match API errors against the package sentinels.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrTransport:
		return true
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	default:
		return false
	}
}
