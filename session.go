package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	gosync "sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/watchsync/internal/config"
	"github.com/tonimelisma/watchsync/internal/extid"
	"github.com/tonimelisma/watchsync/internal/plex"
	"github.com/tonimelisma/watchsync/internal/radarr"
	"github.com/tonimelisma/watchsync/internal/reconcile"
)

// session holds the connected collaborators for one command invocation.
type session struct {
	cfg     *config.Config
	catalog *radarrCatalog
	servers []reconcile.MediaServer
	logger  *slog.Logger
}

// newSession connects to Radarr (when needCatalog is set) and to every
// configured Plex server. An unreachable Radarr is fatal; an unreachable
// Plex server is logged and left out.
func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, needCatalog bool) (*session, error) {
	httpClient := newHTTPClient(cfg)
	userAgent := cfg.Network.UserAgent

	if userAgent == "" {
		userAgent = "watchsync/" + version
	}

	s := &session{cfg: cfg, logger: logger}

	if needCatalog {
		client, status, err := radarr.Connect(ctx, cfg.Radarr.URL, cfg.Radarr.APIKey, radarr.Options{
			HTTPClient:        httpClient,
			Logger:            logger,
			UserAgent:         userAgent,
			RequestsPerSecond: cfg.Network.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", reconcile.ErrCatalogUnavailable, err)
		}

		logger.Info("connected to radarr",
			slog.String("url", cfg.Radarr.URL),
			slog.String("version", status.Version),
		)

		s.catalog = newRadarrCatalog(client)
	}

	servers, err := connectServers(ctx, cfg, plex.Options{
		HTTPClient:        httpClient,
		Logger:            logger,
		UserAgent:         userAgent,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		ClientIdentifier:  clientIdentifier(),
		BreakerFailures:   uint32(cfg.Network.BreakerFailures), //nolint:gosec // bounded by validation
	})
	if err != nil {
		return nil, err
	}

	s.servers = servers

	return s, nil
}

// engine builds a reconciliation engine over the session.
func (s *session) engine(runID string) *reconcile.Engine {
	return reconcile.NewEngine(reconcile.EngineConfig{
		Catalog:      s.catalog,
		Servers:      s.servers,
		Sections:     s.cfg.Libraries,
		Namespace:    extid.Namespace(s.cfg.Sync.IDNamespace),
		TagPrefix:    s.cfg.Sync.TagPrefix,
		DryRun:       s.cfg.Sync.DryRun,
		IndexWorkers: s.cfg.Sync.IndexWorkers,
		EntryWorkers: s.cfg.Sync.EntryWorkers,
		Logger:       s.logger,
		RunID:        runID,
	})
}

// connectServers connects to every configured server concurrently. The
// result keeps configuration order and omits servers that failed.
func connectServers(ctx context.Context, cfg *config.Config, opts plex.Options) ([]reconcile.MediaServer, error) {
	connected := make([]*plex.Server, len(cfg.Servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Sync.IndexWorkers, 1))

	for i, sc := range cfg.Servers {
		g.Go(func() error {
			srv, err := plex.Connect(gctx, sc.URL, sc.Token, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				opts.Logger.Warn("could not connect to plex server, excluding it",
					slog.String("url", sc.URL),
					slog.String("error", err.Error()),
				)

				return nil
			}

			opts.Logger.Info("connected to plex server",
				slog.String("server", displayName(sc, srv)),
				slog.String("url", sc.URL),
			)

			connected[i] = srv

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var servers []reconcile.MediaServer

	for i, srv := range connected {
		if srv != nil {
			servers = append(servers, &plexServer{srv: srv, name: displayName(cfg.Servers[i], srv)})
		}
	}

	return servers, nil
}

func displayName(sc config.ServerConfig, srv *plex.Server) string {
	if sc.Name != "" {
		return sc.Name
	}

	return srv.Name()
}

// newHTTPClient returns the HTTP client shared by every API client.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Network.TimeoutDuration()}
}

// clientIdentifier derives a stable X-Plex-Client-Identifier for this host so
// repeated runs show up as one device in Plex.
func clientIdentifier() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte("watchsync."+host)).String()
}

// plexServer adapts a plex.Server to reconcile.MediaServer.
type plexServer struct {
	srv  *plex.Server
	name string
}

func (p *plexServer) Name() string      { return p.name }
func (p *plexServer) MachineID() string { return p.srv.MachineID() }

// Accounts returns the owning account's display name and the names of its
// friends and Plex Home members.
func (p *plexServer) Accounts(ctx context.Context) (string, []string, error) {
	acct, err := p.srv.Account(ctx)
	if err != nil {
		return "", nil, err
	}

	owner := acct.Title
	if owner == "" {
		owner = acct.Username
	}

	friends, err := p.srv.Friends(ctx)
	if err != nil {
		return "", nil, err
	}

	home, err := p.srv.HomeUsers(ctx)
	if err != nil {
		return "", nil, err
	}

	var managed []string

	for _, f := range friends {
		if f.Title != "" && f.Title != owner {
			managed = append(managed, f.Title)
		}
	}

	for _, h := range home {
		if h.HomeAdmin || h.Title == "" || h.Title == owner {
			continue
		}

		managed = append(managed, h.Title)
	}

	return owner, managed, nil
}

func (p *plexServer) LibraryItems(ctx context.Context, section string) ([]reconcile.LibraryItem, error) {
	sec, err := p.srv.FindSection(ctx, section)
	if err != nil {
		return nil, mapPlexErr(err)
	}

	items, err := p.srv.SectionItems(ctx, sec.Key)
	if err != nil {
		return nil, mapPlexErr(err)
	}

	out := make([]reconcile.LibraryItem, 0, len(items))
	for i := range items {
		out = append(out, reconcile.LibraryItem{
			Ref:   items[i].RatingKey,
			Title: items[i].Title,
			GUIDs: items[i].GUIDStrings(),
		})
	}

	return out, nil
}

func (p *plexServer) IsWatched(ctx context.Context, ref string) (bool, error) {
	return plexView{srv: p.srv}.IsWatched(ctx, ref)
}

func (p *plexServer) AsUser(ctx context.Context, user string) (reconcile.WatchView, error) {
	scoped, err := p.srv.SwitchUser(ctx, user)
	if err != nil {
		return nil, err
	}

	return plexView{srv: scoped}, nil
}

// plexView answers watched-state queries through a user-scoped handle.
type plexView struct {
	srv *plex.Server
}

func (v plexView) IsWatched(ctx context.Context, ref string) (bool, error) {
	watched, err := v.srv.IsWatched(ctx, ref)
	if err != nil {
		return false, mapPlexErr(err)
	}

	return watched, nil
}

// mapPlexErr marks Plex misses with reconcile.ErrNotFound so the engine
// treats them as absent rather than failed.
func mapPlexErr(err error) error {
	if errors.Is(err, plex.ErrNotFound) {
		return fmt.Errorf("%w: %w", reconcile.ErrNotFound, err)
	}

	return err
}

// radarrCatalog adapts a radarr.Client to reconcile.Catalog. It keeps the
// full movie resources so an update sends back every field Radarr returned.
type radarrCatalog struct {
	client *radarr.Client

	mu     gosync.Mutex
	movies map[int]*radarr.Movie
}

func newRadarrCatalog(client *radarr.Client) *radarrCatalog {
	return &radarrCatalog{client: client, movies: make(map[int]*radarr.Movie)}
}

func (c *radarrCatalog) Entries(ctx context.Context) ([]reconcile.Entry, error) {
	movies, err := c.client.Movies(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]reconcile.Entry, 0, len(movies))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range movies {
		c.movies[m.ID] = m
		entries = append(entries, reconcile.Entry{
			ID:         m.ID,
			ExternalID: extid.ID(m.TmdbID),
			Title:      m.Title,
			TagIDs:     append([]int(nil), m.Tags...),
		})
	}

	return entries, nil
}

func (c *radarrCatalog) Tags(ctx context.Context) ([]reconcile.Tag, error) {
	tags, err := c.client.Tags(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]reconcile.Tag, len(tags))
	for i, t := range tags {
		out[i] = reconcile.Tag{ID: t.ID, Label: t.Label}
	}

	return out, nil
}

func (c *radarrCatalog) CreateTag(ctx context.Context, label string) (reconcile.Tag, error) {
	t, err := c.client.CreateTag(ctx, label)
	if err != nil {
		return reconcile.Tag{}, err
	}

	return reconcile.Tag{ID: t.ID, Label: t.Label}, nil
}

// UpdateEntry saves e's tag set onto the stored movie resource. The stored
// copy is replaced only after Radarr accepts the update.
func (c *radarrCatalog) UpdateEntry(ctx context.Context, e reconcile.Entry) error {
	c.mu.Lock()
	stored, ok := c.movies[e.ID]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("radarr: movie %d (%s) not loaded", e.ID, e.Title)
	}

	updated := *stored
	updated.Tags = append([]int(nil), e.TagIDs...)

	if err := c.client.UpdateMovie(ctx, &updated); err != nil {
		return err
	}

	c.mu.Lock()
	c.movies[e.ID] = &updated
	c.mu.Unlock()

	return nil
}
