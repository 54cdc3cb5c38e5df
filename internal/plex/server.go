// Package plex is a minimal client for Plex Media Server and the plex.tv
// account API: server identity, library sections and items, per-account
// watched state, and the account's friends and home users together with the
// access tokens needed to view a server as one of them.
package plex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/tonimelisma/watchsync/internal/httpapi"
)

// DefaultPlexTVURL is the plex.tv API base URL.
const DefaultPlexTVURL = "https://plex.tv"

// Request header names understood by Plex.
const (
	headerToken    = "X-Plex-Token"
	headerClientID = "X-Plex-Client-Identifier"
	headerProduct  = "X-Plex-Product"
	containerStart = "X-Plex-Container-Start"
	containerSize  = "X-Plex-Container-Size"
)

const (
	productName     = "watchsync"
	defaultClientID = "watchsync"
	sectionPageSize = 500
)

// ErrNotFound is returned when an item or section does not exist for the
// requesting account.
var ErrNotFound = httpapi.ErrNotFound

// ErrNoAccess is returned by SwitchUser when the user has no access token
// for this server.
var ErrNoAccess = errors.New("plex: user has no access to server")

// Options configures Connect.
type Options struct {
	HTTPClient        *http.Client
	Logger            *slog.Logger
	UserAgent         string
	RequestsPerSecond float64
	ClientIdentifier  string

	// PlexTVURL overrides DefaultPlexTVURL (tests).
	PlexTVURL string

	// BreakerFailures is the consecutive-failure count that opens the
	// circuit breaker. Zero uses the default.
	BreakerFailures uint32
}

// Server is an authenticated handle to one Plex Media Server. A Server
// obtained from SwitchUser is an independent handle carrying another
// account's token; the original is never mutated.
type Server struct {
	name      string
	machineID string
	clientID  string
	user      string // empty for the owner handle

	api     *httpapi.Client // server API
	tv      *httpapi.Client // plex.tv API, always with the owner token
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

func tokenAuthorizer(token, clientID string) httpapi.Authorizer {
	return func(req *http.Request) {
		req.Header.Set(headerToken, token)
		req.Header.Set(headerClientID, clientID)
		req.Header.Set(headerProduct, productName)
	}
}

// Connect authenticates against the server at baseURL and reads its identity.
func Connect(ctx context.Context, baseURL, token string, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.ClientIdentifier == "" {
		opts.ClientIdentifier = defaultClientID
	}

	if opts.PlexTVURL == "" {
		opts.PlexTVURL = DefaultPlexTVURL
	}

	httpOpts := httpapi.Options{
		HTTPClient:        opts.HTTPClient,
		Logger:            opts.Logger,
		UserAgent:         opts.UserAgent,
		RequestsPerSecond: opts.RequestsPerSecond,
	}

	auth := tokenAuthorizer(token, opts.ClientIdentifier)
	api := httpapi.New("plex", baseURL, auth, httpOpts)

	var ident identityResponse
	if err := api.GetJSON(ctx, "/", nil, &ident); err != nil {
		return nil, fmt.Errorf("plex: connecting to %s: %w", api.BaseURL(), err)
	}

	mc := ident.MediaContainer
	if mc.MachineIdentifier == "" {
		return nil, fmt.Errorf("plex: %s did not report a machine identifier", api.BaseURL())
	}

	name := mc.FriendlyName
	if name == "" {
		name = api.BaseURL()
	}

	opts.Logger.Debug("plex: connected",
		slog.String("server", name),
		slog.String("machine_id", mc.MachineIdentifier),
		slog.String("version", mc.Version),
	)

	return &Server{
		name:      name,
		machineID: mc.MachineIdentifier,
		clientID:  opts.ClientIdentifier,
		api:       api,
		tv:        httpapi.New("plex.tv", opts.PlexTVURL, auth, httpOpts),
		breaker:   newBreaker(name, opts.BreakerFailures, opts.Logger),
		logger:    opts.Logger,
	}, nil
}

// Name returns the server's friendly name.
func (s *Server) Name() string { return s.name }

// MachineID returns the server's stable machine identifier.
func (s *Server) MachineID() string { return s.machineID }

// Sections lists the server's library sections.
func (s *Server) Sections(ctx context.Context) ([]Section, error) {
	var resp sectionsResponse

	err := s.guard(func() error {
		return s.api.GetJSON(ctx, "/library/sections", nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("plex: listing sections on %s: %w", s.name, err)
	}

	return resp.MediaContainer.Directory, nil
}

// FindSection returns the section whose title matches name
// (case-insensitive). Returns ErrNotFound when no section matches.
func (s *Server) FindSection(ctx context.Context, name string) (Section, error) {
	sections, err := s.Sections(ctx)
	if err != nil {
		return Section{}, err
	}

	for _, sec := range sections {
		if strings.EqualFold(sec.Title, name) {
			return sec, nil
		}
	}

	return Section{}, fmt.Errorf("plex: section %q on %s: %w", name, s.name, ErrNotFound)
}

// SectionItems lists every item in a section, including GUIDs. Pages through
// the section so large libraries are not fetched in one response.
func (s *Server) SectionItems(ctx context.Context, sectionKey string) ([]Item, error) {
	path := "/library/sections/" + url.PathEscape(sectionKey) + "/all"

	var items []Item

	for start := 0; ; {
		query := url.Values{
			"includeGuids": {"1"},
			containerStart: {strconv.Itoa(start)},
			containerSize:  {strconv.Itoa(sectionPageSize)},
		}

		var resp metadataResponse

		err := s.guard(func() error {
			return s.api.GetJSON(ctx, path, query, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("plex: listing section %s on %s: %w", sectionKey, s.name, err)
		}

		page := resp.MediaContainer.Metadata
		items = append(items, page...)
		start += len(page)

		// Servers may cap the page below the requested size; totalSize is
		// authoritative when present.
		total := resp.MediaContainer.TotalSize
		if len(page) == 0 || (total > 0 && start >= total) || (total == 0 && len(page) < sectionPageSize) {
			return items, nil
		}
	}
}

// Metadata fetches one item as seen by this handle's account. Returns an
// error wrapping ErrNotFound when the item does not exist for the account.
func (s *Server) Metadata(ctx context.Context, ratingKey string) (*Item, error) {
	var resp metadataResponse

	err := s.guard(func() error {
		return s.api.GetJSON(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("plex: fetching item %s on %s as %s: %w", ratingKey, s.name, s.account(), err)
	}

	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("plex: item %s on %s: %w", ratingKey, s.name, ErrNotFound)
	}

	return &resp.MediaContainer.Metadata[0], nil
}

// account names the account this handle acts as, for messages.
func (s *Server) account() string {
	if s.user == "" {
		return "owner"
	}

	return s.user
}

// IsWatched reports whether this handle's account has watched the item.
func (s *Server) IsWatched(ctx context.Context, ratingKey string) (bool, error) {
	item, err := s.Metadata(ctx, ratingKey)
	if err != nil {
		return false, err
	}

	return item.Watched(), nil
}
