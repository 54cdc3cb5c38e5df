package plex

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tonimelisma/watchsync/internal/httpapi"
)

// Circuit breaker defaults. A server that fails this many calls in a row is
// treated as down for breakerTimeout; calls fail fast with ErrServerDown.
const (
	defaultBreakerFailures = 5
	breakerHalfOpenProbes  = 1
	breakerTimeout         = time.Minute
)

// ErrServerDown is returned while a server's circuit breaker is open.
var ErrServerDown = errors.New("plex: server unavailable (circuit open)")

// newBreaker builds the per-server breaker, shared by the owner handle and
// every user-scoped handle. Only transport and 5xx errors count as failures:
// a 4xx answers for one request or one account, not for the server.
func newBreaker(name string, failures uint32, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	if failures == 0 {
		failures = defaultBreakerFailures
	}

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenProbes,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: serverHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("plex: circuit breaker state change",
				slog.String("server", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// serverHealthy reports whether err leaves the server's health intact.
func serverHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *httpapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError
	}

	return false
}

// guard runs fn through the server's breaker.
func (s *Server) guard(fn func() error) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrServerDown
	}

	return err
}
