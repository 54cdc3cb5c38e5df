package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	gosync "sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/watchsync/internal/config"
	"github.com/tonimelisma/watchsync/internal/extid"
	"github.com/tonimelisma/watchsync/internal/plex"
	"github.com/tonimelisma/watchsync/internal/reconcile"
)

const (
	plexOwnerToken = "owner-token"
	plexAliceToken = "alice-token"
	plexMachineID  = "m-den"
	radarrKey      = "radarr-key"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlexServer serves one Plex server and the plex.tv endpoints. The Owner
// watched Heat (200); Alice watched The Matrix (100).
func fakePlexServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"MediaContainer":{"friendlyName":"Den","machineIdentifier":%q}}`, plexMachineID)
	})

	mux.HandleFunc("GET /library/sections", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"MediaContainer":{"Directory":[{"key":"1","title":"Movies","type":"movie"}]}}`))
	})

	mux.HandleFunc("GET /library/sections/1/all", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"MediaContainer":{"totalSize":2,"Metadata":[
			{"ratingKey":"100","title":"The Matrix","Guid":[{"id":"imdb://tt0133093"},{"id":"tmdb://603"}]},
			{"ratingKey":"200","title":"Heat","Guid":[{"id":"tmdb://949"}]}]}}`))
	})

	mux.HandleFunc("GET /library/metadata/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		token := r.Header.Get("X-Plex-Token")

		watched := (key == "100" && token == plexAliceToken) || (key == "200" && token == plexOwnerToken)

		switch {
		case key != "100" && key != "200":
			w.WriteHeader(http.StatusNotFound)
		case watched:
			fmt.Fprintf(w, `{"MediaContainer":{"Metadata":[{"ratingKey":%q,"viewCount":1}]}}`, key)
		default:
			fmt.Fprintf(w, `{"MediaContainer":{"Metadata":[{"ratingKey":%q}]}}`, key)
		}
	})

	mux.HandleFunc("GET /api/v2/user", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"username":"owner","title":"Owner"}`))
	})

	mux.HandleFunc("GET /api/v2/friends", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":2,"username":"alice","title":"Alice"}]`))
	})

	mux.HandleFunc("GET /api/home/users", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"users":[{"id":1,"title":"Owner","homeAdmin":true}]}`))
	})

	mux.HandleFunc("GET /api/servers/"+plexMachineID+"/shared_servers", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"MediaContainer":{"SharedServer":[{"id":9,"username":"Alice","accessToken":%q}]}}`, plexAliceToken)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// fakeRadarrState is an in-memory Radarr. Tag 7 is watched_by_alice and is
// stale on Heat.
type fakeRadarrState struct {
	mu     gosync.Mutex
	tags   []map[string]any
	movies map[int]map[string]any
	writes int
}

func fakeRadarrServer(t *testing.T) (*httptest.Server, *fakeRadarrState) {
	t.Helper()

	st := &fakeRadarrState{
		tags: []map[string]any{{"id": 7, "label": "watched_by_alice"}},
		movies: map[int]map[string]any{
			1: {"id": 1, "title": "The Matrix", "tmdbId": 603, "tags": []int{}, "monitored": true},
			2: {"id": 2, "title": "Heat", "tmdbId": 949, "tags": []int{7}},
			3: {"id": 3, "title": "Home Video", "tmdbId": 0, "tags": []int{}},
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v3/system/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != radarrKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`{"appName":"Radarr","version":"5.3.6"}`))
	})

	mux.HandleFunc("GET /api/v3/tag", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()

		assert.NoError(t, json.NewEncoder(w).Encode(st.tags))
	})

	mux.HandleFunc("POST /api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		st.mu.Lock()
		defer st.mu.Unlock()

		st.writes++
		tag := map[string]any{"id": 7 + len(st.tags), "label": body["label"]}
		st.tags = append(st.tags, tag)

		assert.NoError(t, json.NewEncoder(w).Encode(tag))
	})

	mux.HandleFunc("GET /api/v3/movie", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()

		list := []map[string]any{st.movies[1], st.movies[2], st.movies[3]}
		assert.NoError(t, json.NewEncoder(w).Encode(list))
	})

	mux.HandleFunc("PUT /api/v3/movie/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		st.mu.Lock()
		defer st.mu.Unlock()

		st.writes++
		st.movies[id] = body

		w.WriteHeader(http.StatusAccepted)
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, st
}

func (st *fakeRadarrState) movieTags(id int) []any {
	st.mu.Lock()
	defer st.mu.Unlock()

	tags, _ := st.movies[id]["tags"].([]any)

	return tags
}

func testConfig(plexURL, radarrURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Servers = []config.ServerConfig{{URL: plexURL, Token: plexOwnerToken}}
	cfg.Libraries = []string{"Movies"}
	cfg.Radarr = config.RadarrConfig{URL: radarrURL, APIKey: radarrKey}

	return cfg
}

// testSession wires a session against the fakes, pointing plex.tv at the
// fake Plex server.
func testSession(t *testing.T, cfg *config.Config) *session {
	t.Helper()

	ctx := t.Context()
	logger := discardLogger()

	base, err := newSession(ctx, cfg, logger, true)
	require.NoError(t, err)

	servers, err := connectServers(ctx, cfg, plex.Options{
		Logger:    logger,
		PlexTVURL: cfg.Servers[0].URL,
	})
	require.NoError(t, err)

	base.servers = servers

	return base
}

func TestSession_FullPass(t *testing.T) {
	t.Parallel()

	plexSrv := fakePlexServer(t)
	radarrSrv, st := fakeRadarrServer(t)

	sess := testSession(t, testConfig(plexSrv.URL, radarrSrv.URL))

	report, err := sess.engine("run-1").RunOnce(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Servers)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.TagsCreated)
	assert.Zero(t, report.Failed)

	// Matrix: Alice's existing tag added, unmodeled fields preserved.
	assert.Equal(t, []any{float64(7)}, st.movieTags(1))
	st.mu.Lock()
	assert.Equal(t, true, st.movies[1]["monitored"])
	st.mu.Unlock()

	// Heat: watched_by_owner created and added, Alice's stale tag removed.
	assert.Equal(t, []any{float64(8)}, st.movieTags(2))
}

func TestSession_SecondPassIsNoOp(t *testing.T) {
	t.Parallel()

	plexSrv := fakePlexServer(t)
	radarrSrv, st := fakeRadarrServer(t)
	cfg := testConfig(plexSrv.URL, radarrSrv.URL)

	_, err := testSession(t, cfg).engine("run-1").RunOnce(t.Context())
	require.NoError(t, err)

	st.mu.Lock()
	writes := st.writes
	st.mu.Unlock()

	report, err := testSession(t, cfg).engine("run-2").RunOnce(t.Context())
	require.NoError(t, err)

	assert.Zero(t, report.Added)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.TagsCreated)

	st.mu.Lock()
	assert.Equal(t, writes, st.writes)
	st.mu.Unlock()
}

func TestSession_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	plexSrv := fakePlexServer(t)
	radarrSrv, st := fakeRadarrServer(t)

	cfg := testConfig(plexSrv.URL, radarrSrv.URL)
	cfg.Sync.DryRun = true

	report, err := testSession(t, cfg).engine("run-1").RunOnce(t.Context())
	require.NoError(t, err)

	require.NotNil(t, report.Preview)
	assert.Equal(t, []reconcile.UserPreview{
		{User: "Owner", Add: []string{"Heat"}, Remove: []string{}},
		{User: "Alice", Add: []string{"The Matrix"}, Remove: []string{"Heat"}},
	}, report.Preview.Users())

	st.mu.Lock()
	assert.Zero(t, st.writes)
	st.mu.Unlock()
}

func TestNewSession_RadarrUnavailableIsFatal(t *testing.T) {
	t.Parallel()

	radarrSrv, _ := fakeRadarrServer(t)

	cfg := testConfig("http://127.0.0.1:1", radarrSrv.URL)
	cfg.Radarr.APIKey = "wrong"

	_, err := newSession(t.Context(), cfg, discardLogger(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrCatalogUnavailable)
}

func TestConnectServers_ExcludesUnreachable(t *testing.T) {
	t.Parallel()

	plexSrv := fakePlexServer(t)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(down.Close)

	cfg := testConfig(plexSrv.URL, "")
	cfg.Servers = append(cfg.Servers, config.ServerConfig{URL: down.URL, Token: "bad"})
	cfg.Servers[0].Name = "den"

	servers, err := connectServers(t.Context(), cfg, plex.Options{Logger: discardLogger(), PlexTVURL: plexSrv.URL})
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "den", servers[0].Name())
	assert.Equal(t, plexMachineID, servers[0].MachineID())
}

func connectFakePlex(t *testing.T) reconcile.MediaServer {
	t.Helper()

	plexSrv := fakePlexServer(t)

	servers, err := connectServers(t.Context(), testConfig(plexSrv.URL, ""), plex.Options{
		Logger:    discardLogger(),
		PlexTVURL: plexSrv.URL,
	})
	require.NoError(t, err)
	require.Len(t, servers, 1)

	return servers[0]
}

func TestPlexServer_Accounts(t *testing.T) {
	t.Parallel()

	srv := connectFakePlex(t)

	owner, managed, err := srv.Accounts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Owner", owner)
	assert.Equal(t, []string{"Alice"}, managed)
}

func TestPlexServer_LibraryItems(t *testing.T) {
	t.Parallel()

	srv := connectFakePlex(t)

	items, err := srv.LibraryItems(t.Context(), "movies")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "100", items[0].Ref)
	assert.Contains(t, items[0].GUIDs, "tmdb://603")

	_, err = srv.LibraryItems(t.Context(), "Anime")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestPlexServer_WatchedPerUser(t *testing.T) {
	t.Parallel()

	srv := connectFakePlex(t)
	ctx := t.Context()

	watched, err := srv.IsWatched(ctx, "200")
	require.NoError(t, err)
	assert.True(t, watched)

	alice, err := srv.AsUser(ctx, "Alice")
	require.NoError(t, err)

	watched, err = alice.IsWatched(ctx, "100")
	require.NoError(t, err)
	assert.True(t, watched)

	watched, err = alice.IsWatched(ctx, "200")
	require.NoError(t, err)
	assert.False(t, watched)

	_, err = alice.IsWatched(ctx, "999")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)

	// The owner handle is unaffected by AsUser.
	watched, err = srv.IsWatched(ctx, "100")
	require.NoError(t, err)
	assert.False(t, watched)
}

func TestPlexServer_AsUserWithoutAccess(t *testing.T) {
	t.Parallel()

	srv := connectFakePlex(t)

	_, err := srv.AsUser(t.Context(), "Mallory")
	assert.ErrorIs(t, err, plex.ErrNoAccess)
}

func TestRadarrCatalog_UpdateUnknownEntry(t *testing.T) {
	t.Parallel()

	cat := newRadarrCatalog(nil)

	err := cat.UpdateEntry(context.Background(), reconcile.Entry{ID: 42, Title: "Ghost", ExternalID: extid.ID(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")
}
