package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"

	"github.com/tonimelisma/watchsync/internal/extid"
)

// testWriter adapts t.Log to io.Writer for slog handlers.
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))

	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// logBuffer captures log output for assertions. Safe for concurrent writers.
type logBuffer struct {
	mu  gosync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func captureLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// --- fakeServer ---

// fakeServer implements MediaServer. watched is keyed by user then ref; a
// ref missing for a user reports ErrNotFound.
type fakeServer struct {
	name      string
	machineID string
	owner     string
	managed   []string

	sections map[string][]LibraryItem
	watched  map[string]map[string]bool

	accountsErr error
	listErr     error
	asUserErr   map[string]error

	asUserCalls atomic.Int32
	watchCalls  atomic.Int32
}

func newFakeServer(name, owner string, managed ...string) *fakeServer {
	return &fakeServer{
		name:      name,
		machineID: "m-" + name,
		owner:     owner,
		managed:   managed,
		sections:  make(map[string][]LibraryItem),
		watched:   make(map[string]map[string]bool),
		asUserErr: make(map[string]error),
	}
}

// addMovie puts a movie with the given TMDB ID in the "Movies" section.
func (s *fakeServer) addMovie(id int, title string) string {
	ref := fmt.Sprintf("%s-%d", s.name, id)
	s.sections["Movies"] = append(s.sections["Movies"], LibraryItem{
		Ref:   ref,
		Title: title,
		GUIDs: []string{"imdb://tt" + fmt.Sprint(id), extid.ID(id).GUID(extid.TMDB)},
	})

	return ref
}

func (s *fakeServer) setWatched(user, ref string, watched bool) {
	if s.watched[user] == nil {
		s.watched[user] = make(map[string]bool)
	}

	s.watched[user][ref] = watched
}

func (s *fakeServer) Name() string      { return s.name }
func (s *fakeServer) MachineID() string { return s.machineID }

func (s *fakeServer) Accounts(context.Context) (string, []string, error) {
	if s.accountsErr != nil {
		return "", nil, s.accountsErr
	}

	return s.owner, s.managed, nil
}

func (s *fakeServer) LibraryItems(_ context.Context, section string) ([]LibraryItem, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	items, ok := s.sections[section]
	if !ok {
		return nil, fmt.Errorf("section %q: %w", section, ErrNotFound)
	}

	return items, nil
}

func (s *fakeServer) IsWatched(ctx context.Context, ref string) (bool, error) {
	return s.watchedAs(ctx, s.owner, ref)
}

func (s *fakeServer) watchedAs(_ context.Context, user, ref string) (bool, error) {
	s.watchCalls.Add(1)

	w, ok := s.watched[user][ref]
	if !ok {
		return false, fmt.Errorf("item %s: %w", ref, ErrNotFound)
	}

	return w, nil
}

func (s *fakeServer) AsUser(_ context.Context, user string) (WatchView, error) {
	s.asUserCalls.Add(1)

	if err := s.asUserErr[user]; err != nil {
		return nil, err
	}

	return &fakeView{server: s, user: user}, nil
}

type fakeView struct {
	server *fakeServer
	user   string
}

func (v *fakeView) IsWatched(ctx context.Context, ref string) (bool, error) {
	return v.server.watchedAs(ctx, v.user, ref)
}

// --- fakeCatalog ---

// fakeCatalog implements Catalog in memory and counts mutations.
type fakeCatalog struct {
	mu      gosync.Mutex
	entries []Entry
	tags    []Tag
	nextTag int

	tagsErr    error
	entriesErr error
	updateErr  map[int]error
	createErr  error

	creates atomic.Int32
	updates atomic.Int32
}

func newFakeCatalog(entries ...Entry) *fakeCatalog {
	return &fakeCatalog{entries: entries, nextTag: 1, updateErr: make(map[int]error)}
}

func (c *fakeCatalog) Entries(context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entriesErr != nil {
		return nil, c.entriesErr
	}

	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		e.TagIDs = slices.Clone(e.TagIDs)
		out[i] = e
	}

	return out, nil
}

func (c *fakeCatalog) Tags(context.Context) ([]Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tagsErr != nil {
		return nil, c.tagsErr
	}

	return slices.Clone(c.tags), nil
}

func (c *fakeCatalog) CreateTag(_ context.Context, label string) (Tag, error) {
	c.creates.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.createErr != nil {
		return Tag{}, c.createErr
	}

	for _, t := range c.tags {
		if t.Label == label {
			return Tag{}, errors.New("tag already exists")
		}
	}

	t := Tag{ID: c.nextTag, Label: label}
	c.nextTag++
	c.tags = append(c.tags, t)

	return t, nil
}

func (c *fakeCatalog) UpdateEntry(_ context.Context, e Entry) error {
	c.updates.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.updateErr[e.ID]; err != nil {
		return err
	}

	for i := range c.entries {
		if c.entries[i].ID == e.ID {
			c.entries[i].TagIDs = slices.Clone(e.TagIDs)
			return nil
		}
	}

	return fmt.Errorf("entry %d: %w", e.ID, ErrNotFound)
}

// addTag registers an existing tag and returns its ID.
func (c *fakeCatalog) addTag(label string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := Tag{ID: c.nextTag, Label: label}
	c.nextTag++
	c.tags = append(c.tags, t)

	return t.ID
}

func (c *fakeCatalog) entry(id int) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.ID == id {
			return e
		}
	}

	return Entry{}
}

func (c *fakeCatalog) tagID(label string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tags {
		if t.Label == label {
			return t.ID, true
		}
	}

	return 0, false
}

func servers(s ...*fakeServer) []MediaServer {
	out := make([]MediaServer, len(s))
	for i, srv := range s {
		out[i] = srv
	}

	return out
}

func extidOf(n int) extid.ID {
	return extid.ID(n)
}
