package radarr

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/watchsync/internal/httpapi"
)

const testKey = "radarr-key"

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeRadarr(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()

	mux.HandleFunc("GET /api/v3/system/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerAPIKey) != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`{"appName":"Radarr","version":"5.3.6"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestConnect(t *testing.T) {
	t.Parallel()

	srv := fakeRadarr(t, http.NewServeMux())

	_, status, err := Connect(context.Background(), srv.URL, testKey, Options{Logger: testLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, "Radarr", status.AppName)
}

func TestConnect_BadKey(t *testing.T) {
	t.Parallel()

	srv := fakeRadarr(t, http.NewServeMux())

	_, _, err := Connect(context.Background(), srv.URL, "wrong", Options{Logger: testLogger(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, httpapi.ErrUnauthorized)
}

func TestMoviesAndUpdate_RoundTripUnknownFields(t *testing.T) {
	t.Parallel()

	var saved map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/movie", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"title":"The Matrix","year":1999,"tmdbId":603,"tags":[4],"monitored":true,"qualityProfileId":6,"path":"/movies/The Matrix (1999)"},
			{"id":2,"title":"Untracked","tmdbId":0,"tags":[]}]`))
	})
	mux.HandleFunc("PUT /api/v3/movie/1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &saved))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	})

	srv := fakeRadarr(t, mux)
	c, _, err := Connect(context.Background(), srv.URL, testKey, Options{Logger: testLogger(t)})
	require.NoError(t, err)

	movies, err := c.Movies(context.Background())
	require.NoError(t, err)
	require.Len(t, movies, 2)

	m := movies[0]
	assert.Equal(t, int64(603), m.TmdbID)
	assert.Equal(t, []int{4}, m.Tags)

	m.Tags = append(m.Tags, 5)
	require.NoError(t, c.UpdateMovie(context.Background(), m))

	assert.Equal(t, true, saved["monitored"])
	assert.Equal(t, float64(6), saved["qualityProfileId"])
	assert.Equal(t, "/movies/The Matrix (1999)", saved["path"])
	assert.Equal(t, []any{float64(4), float64(5)}, saved["tags"])
}

func TestTags(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/tag", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"label":"watched_by_alice"}]`))
	})
	mux.HandleFunc("POST /api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		var in Tag
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Zero(t, in.ID)

		_, _ = w.Write([]byte(`{"id":2,"label":"` + in.Label + `"}`))
	})

	srv := fakeRadarr(t, mux)
	c, _, err := Connect(context.Background(), srv.URL, testKey, Options{Logger: testLogger(t)})
	require.NoError(t, err)

	tags, err := c.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Tag{{ID: 1, Label: "watched_by_alice"}}, tags)

	created, err := c.CreateTag(context.Background(), "watched_by_bob")
	require.NoError(t, err)
	assert.Equal(t, Tag{ID: 2, Label: "watched_by_bob"}, created)
}

func TestMovie_MarshalNilTags(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(&Movie{ID: 3, Title: "X"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"title":"X","tmdbId":0,"tags":[]}`, string(data))
}
