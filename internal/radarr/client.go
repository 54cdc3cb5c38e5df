// Package radarr is a minimal Radarr v3 API client covering what tag
// reconciliation needs: listing movies and tags, creating tags, and saving a
// movie's tag set.
package radarr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tonimelisma/watchsync/internal/httpapi"
)

const (
	headerAPIKey = "X-Api-Key"
	apiPrefix    = "/api/v3"
)

// ErrUnavailable is returned by Connect when Radarr cannot be reached or
// rejects the API key.
var ErrUnavailable = errors.New("radarr: unavailable")

// Options configures Connect.
type Options struct {
	HTTPClient        *http.Client
	Logger            *slog.Logger
	UserAgent         string
	RequestsPerSecond float64
}

// Client talks to one Radarr instance.
type Client struct {
	api    *httpapi.Client
	logger *slog.Logger
}

// SystemStatus is the subset of /system/status used to confirm connectivity.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// Connect builds a client and verifies the instance answers with the key.
func Connect(ctx context.Context, baseURL, apiKey string, opts Options) (*Client, *SystemStatus, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		api: httpapi.New("radarr", baseURL+apiPrefix, func(req *http.Request) {
			req.Header.Set(headerAPIKey, apiKey)
		}, httpapi.Options{
			HTTPClient:        opts.HTTPClient,
			Logger:            opts.Logger,
			UserAgent:         opts.UserAgent,
			RequestsPerSecond: opts.RequestsPerSecond,
		}),
		logger: opts.Logger,
	}

	var status SystemStatus
	if err := c.api.GetJSON(ctx, "/system/status", nil, &status); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return c, &status, nil
}

// Movies lists every movie in the library.
func (c *Client) Movies(ctx context.Context) ([]*Movie, error) {
	var movies []*Movie
	if err := c.api.GetJSON(ctx, "/movie", nil, &movies); err != nil {
		return nil, fmt.Errorf("radarr: listing movies: %w", err)
	}

	return movies, nil
}

// Tags lists every tag.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.api.GetJSON(ctx, "/tag", nil, &tags); err != nil {
		return nil, fmt.Errorf("radarr: listing tags: %w", err)
	}

	return tags, nil
}

// CreateTag creates a tag with the given label and returns it with its ID.
func (c *Client) CreateTag(ctx context.Context, label string) (Tag, error) {
	var created Tag
	if err := c.api.DoJSON(ctx, http.MethodPost, "/tag", nil, Tag{Label: label}, &created); err != nil {
		return Tag{}, fmt.Errorf("radarr: creating tag %q: %w", label, err)
	}

	c.logger.Debug("radarr: created tag", slog.String("label", created.Label), slog.Int("id", created.ID))

	return created, nil
}

// UpdateMovie saves m, including its current tag set. Fields the client does
// not model are sent back unchanged.
func (c *Client) UpdateMovie(ctx context.Context, m *Movie) error {
	path := "/movie/" + strconv.Itoa(m.ID)
	if err := c.api.DoJSON(ctx, http.MethodPut, path, nil, m, nil); err != nil {
		return fmt.Errorf("radarr: updating movie %d (%s): %w", m.ID, m.Title, err)
	}

	return nil
}
