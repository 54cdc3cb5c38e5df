package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 3
	baseBackoff       = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	defaultUserAgent  = "watchsync/dev"
)

// Authorizer decorates an outgoing request with credentials. Plex sets
// X-Plex-Token, Radarr sets X-Api-Key.
type Authorizer func(req *http.Request)

// Options tunes a Client. The zero value is usable: default HTTP client,
// slog.Default(), no rate limit, three retries.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string

	// RequestsPerSecond limits outgoing requests; zero disables limiting.
	RequestsPerSecond float64

	// MaxRetries caps retries of network errors and retryable statuses.
	// Negative disables retries; zero uses the default.
	MaxRetries int
}

// Client is a JSON-over-HTTP client for one service base URL.
// It handles request construction, authentication, rate limiting, retry
// with exponential backoff, and error classification.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	authorize  Authorizer
	limiter    *rate.Limiter
	logger     *slog.Logger
	userAgent  string
	maxRetries int

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Client. service names the remote in errors and logs
// ("plex", "radarr"); baseURL has any trailing slash removed.
func New(service, baseURL string, authorize Authorizer, opts Options) *Client {
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: opts.HTTPClient,
		authorize:  authorize,
		logger:     opts.Logger,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		sleepFunc:  timeSleep,
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	switch {
	case c.maxRetries == 0:
		c.maxRetries = defaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}

	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(math.Ceil(opts.RequestsPerSecond)))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithAuthorizer returns a copy of c that authenticates with authorize
// instead. The copy shares the HTTP client and rate limiter, so scoped
// per-user clients still count against the same server budget.
func (c *Client) WithAuthorizer(authorize Authorizer) *Client {
	clone := *c
	clone.authorize = authorize

	return &clone
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, query, nil, out)
}

// DoJSON sends in (when non-nil) as a JSON body and decodes the response into
// out (when non-nil). 204 responses leave out untouched.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte

	if in != nil {
		var err error

		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding %s %s body: %w", c.service, method, path, err)
		}
	}

	resp, err := c.Do(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding %s %s response: %w", c.service, method, path, err)
	}

	return nil
}

// Do executes a request against path (appended to the base URL) and returns
// the 2xx response. The caller closes the body. Non-2xx responses are
// returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, payload []byte) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var attempt int
	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.service, err)
			}
		}

		resp, err := c.doOnce(ctx, method, reqURL, payload)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.service, ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("service", c.service),
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("%s: request canceled: %w", c.service, sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%s: %s %s failed after %d retries: %w", c.service, method, path, attempt, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("service", c.service),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMessageLen))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("service", c.service),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.service, err)
			}

			attempt++

			continue
		}

		return nil, &APIError{
			Service:    c.service,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, reqURL string, payload []byte) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.authorize != nil {
		c.authorize(req)
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
