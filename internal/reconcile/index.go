package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/watchsync/internal/extid"
)

const defaultIndexWorkers = 4

// LookupMap maps an external ID to a server-local item reference.
type LookupMap map[extid.ID]string

// IndexTable holds one LookupMap per server, keyed by machine ID. It is
// built once per run and read-only afterwards, so concurrent readers need
// no locking.
type IndexTable struct {
	maps map[string]LookupMap
}

// Lookup resolves id on the server identified by machineID.
func (t *IndexTable) Lookup(machineID string, id extid.ID) (string, bool) {
	ref, ok := t.maps[machineID][id]
	return ref, ok
}

// Len returns the number of indexed titles for a server.
func (t *IndexTable) Len(machineID string) int {
	return len(t.maps[machineID])
}

// IndexBuilder scans library sections and builds LookupMaps.
type IndexBuilder struct {
	namespace extid.Namespace
	sections  []string
	workers   int
	logger    *slog.Logger
}

// NewIndexBuilder creates a builder for the given namespace and section
// names. workers bounds how many servers are scanned at once.
func NewIndexBuilder(ns extid.Namespace, sections []string, workers int, logger *slog.Logger) *IndexBuilder {
	if workers <= 0 {
		workers = defaultIndexWorkers
	}

	return &IndexBuilder{
		namespace: ns,
		sections:  sections,
		workers:   workers,
		logger:    logger,
	}
}

// Build scans every configured section of server. Missing sections and
// listing failures are logged and skipped; items without a parseable ID in
// the namespace are skipped. When an ID occurs twice the first item wins.
func (b *IndexBuilder) Build(ctx context.Context, server MediaServer) LookupMap {
	m := make(LookupMap)

	for _, section := range b.sections {
		if ctx.Err() != nil {
			return m
		}

		items, err := server.LibraryItems(ctx, section)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				b.logger.Warn("library section not found, skipping",
					slog.String("server", server.Name()),
					slog.String("section", section),
				)
			} else {
				b.logger.Warn("could not list library section, skipping",
					slog.String("server", server.Name()),
					slog.String("section", section),
					slog.String("error", err.Error()),
				)
			}

			continue
		}

		added := 0

		for _, item := range items {
			id, ok := extid.FirstMatch(b.namespace, item.GUIDs)
			if !ok {
				continue
			}

			if _, dup := m[id]; dup {
				b.logger.Debug("duplicate external id, keeping first item",
					slog.String("server", server.Name()),
					slog.String("external_id", id.GUID(b.namespace)),
					slog.String("title", item.Title),
				)

				continue
			}

			m[id] = item.Ref
			added++
		}

		b.logger.Info("indexed library section",
			slog.String("server", server.Name()),
			slog.String("section", section),
			slog.Int("items", len(items)),
			slog.Int("indexed", added),
			slog.Int("total", len(m)),
		)
	}

	return m
}

// BuildAll builds the index for every server concurrently. It only fails
// when ctx is canceled.
func (b *IndexBuilder) BuildAll(ctx context.Context, servers []MediaServer) (*IndexTable, error) {
	maps := make([]LookupMap, len(servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, srv := range servers {
		g.Go(func() error {
			maps[i] = b.Build(gctx, srv)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := &IndexTable{maps: make(map[string]LookupMap, len(servers))}
	for i, srv := range servers {
		table.maps[srv.MachineID()] = maps[i]
	}

	return table, nil
}
