// Package httpapi provides the JSON-over-HTTP client shared by the Plex and
// Radarr integrations: request construction, authentication hooks, client-side
// rate limiting, retry with exponential backoff, and error classification.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, httpapi.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("httpapi: bad request")
	ErrUnauthorized = errors.New("httpapi: unauthorized")
	ErrForbidden    = errors.New("httpapi: forbidden")
	ErrNotFound     = errors.New("httpapi: not found")
	ErrConflict     = errors.New("httpapi: conflict")
	ErrThrottled    = errors.New("httpapi: throttled")
	ErrServerError  = errors.New("httpapi: server error")
	ErrUnexpected   = errors.New("httpapi: unexpected status")
)

// APIError wraps a sentinel error with the service name, HTTP status code,
// request line and the response body for debugging.
type APIError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s %s: HTTP %d", e.Service, e.Method, e.Path, e.StatusCode)
	}

	return fmt.Sprintf("%s: %s %s: HTTP %d: %s", e.Service, e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// maxMessageLen caps how much of an error body ends up in APIError.Message.
const maxMessageLen = 512

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusOK && code < http.StatusMultipleChoices {
			return nil
		}

		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
