package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"golang.org/x/sync/singleflight"
)

// Observation maps a server name to the watched flag a user has there.
// Servers that could not observe the title are absent, which is different
// from an unwatched (false) observation.
type Observation map[string]bool

// scopeKey identifies one user's view of one server.
type scopeKey struct {
	machineID string
	user      string
}

type scopeResult struct {
	view WatchView
	err  error
}

// ScopeTable caches one scoped WatchView per (server, user). Each entry is
// resolved at most once per run, including failures, so a user without
// access to a server is not re-resolved for every title.
type ScopeTable struct {
	mu     gosync.RWMutex
	scopes map[scopeKey]scopeResult
	group  singleflight.Group
	logger *slog.Logger
}

// errNoScope wraps a failure to obtain a user's view of a server. It is
// logged once when the view is first resolved.
var errNoScope = errors.New("reconcile: no scoped view")

// NewScopeTable creates an empty table.
func NewScopeTable(logger *slog.Logger) *ScopeTable {
	return &ScopeTable{scopes: make(map[scopeKey]scopeResult), logger: logger}
}

// View returns the cached view for user on srv, resolving it via AsUser on
// first use. Concurrent first uses share one AsUser call.
func (t *ScopeTable) View(ctx context.Context, srv MediaServer, user string) (WatchView, error) {
	key := scopeKey{machineID: srv.MachineID(), user: user}

	t.mu.RLock()
	res, ok := t.scopes[key]
	t.mu.RUnlock()

	if ok {
		return res.view, res.err
	}

	v, _, _ := t.group.Do(key.machineID+"\x00"+key.user, func() (any, error) {
		t.mu.RLock()
		cached, ok := t.scopes[key]
		t.mu.RUnlock()

		if ok {
			return cached, nil
		}

		view, err := srv.AsUser(ctx, user)

		// Cancellation says nothing about the user's access; don't cache it.
		if ctx.Err() != nil {
			return scopeResult{err: ctx.Err()}, nil
		}

		r := scopeResult{view: view}
		if err != nil {
			t.logger.Warn("no view of server for user, skipping its observations",
				slog.String("server", srv.Name()),
				slog.String("user", user),
				slog.String("error", err.Error()),
			)

			r = scopeResult{err: fmt.Errorf("%w: %s as %s: %w", errNoScope, srv.Name(), user, err)}
		}

		t.mu.Lock()
		t.scopes[key] = r
		t.mu.Unlock()

		return r, nil
	})

	res = v.(scopeResult)

	return res.view, res.err
}

// Observer collects per-server watched flags for one (user, entry) pair.
type Observer struct {
	index  *IndexTable
	owners map[string]string
	scopes *ScopeTable
	logger *slog.Logger
}

// NewObserver creates an observer over a built index. owners maps machine ID
// to the owning account, which is queried directly; everyone else is queried
// through a scoped view.
func NewObserver(index *IndexTable, owners map[string]string, logger *slog.Logger) *Observer {
	return &Observer{
		index:  index,
		owners: owners,
		scopes: NewScopeTable(logger),
		logger: logger,
	}
}

// Observe asks every server that indexes the entry whether user watched it.
// Lookup misses and query failures omit that server's observation.
func (o *Observer) Observe(ctx context.Context, servers []MediaServer, user string, e *Entry) Observation {
	obs := make(Observation, len(servers))

	for _, srv := range servers {
		ref, ok := o.index.Lookup(srv.MachineID(), e.ExternalID)
		if !ok {
			continue
		}

		watched, err := o.observeOne(ctx, srv, user, ref)
		if err != nil {
			switch {
			case errors.Is(err, errNoScope), ctx.Err() != nil:
			case errors.Is(err, ErrNotFound):
				o.logger.Debug("item not visible to user",
					slog.String("server", srv.Name()),
					slog.String("user", user),
					slog.String("title", e.Title),
				)
			default:
				o.logger.Warn("could not read watched state",
					slog.String("server", srv.Name()),
					slog.String("user", user),
					slog.String("title", e.Title),
					slog.String("error", err.Error()),
				)
			}

			continue
		}

		obs[srv.Name()] = watched
	}

	return obs
}

func (o *Observer) observeOne(ctx context.Context, srv MediaServer, user, ref string) (bool, error) {
	if user == o.owners[srv.MachineID()] {
		return srv.IsWatched(ctx, ref)
	}

	view, err := o.scopes.View(ctx, srv, user)
	if err != nil {
		return false, err
	}

	return view.IsWatched(ctx, ref)
}
