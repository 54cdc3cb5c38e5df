package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/watchsync/internal/extid"
)

const defaultEntryWorkers = 1

// EngineConfig holds the collaborators and options for an Engine.
type EngineConfig struct {
	Catalog  Catalog
	Servers  []MediaServer
	Sections []string

	// Namespace selects the external ID scheme shared by catalog and servers.
	// Defaults to TMDB.
	Namespace extid.Namespace
	TagPrefix string
	DryRun    bool

	IndexWorkers int
	EntryWorkers int

	Logger *slog.Logger
	RunID  string
}

// Engine drives one reconciliation pass over a catalog and a set of media
// servers.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger
}

// NewEngine creates an Engine. Connectivity is not checked until RunOnce.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Namespace == "" {
		cfg.Namespace = extid.TMDB
	}

	if cfg.TagPrefix == "" {
		cfg.TagPrefix = DefaultTagPrefix
	}

	if cfg.EntryWorkers <= 0 {
		cfg.EntryWorkers = defaultEntryWorkers
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger
	if cfg.RunID != "" {
		logger = logger.With(slog.String("run_id", cfg.RunID))
	}

	return &Engine{cfg: cfg, logger: logger}
}

// Discover runs user discovery only.
func (e *Engine) Discover(ctx context.Context) (*Discovery, error) {
	return DiscoverUsers(ctx, e.cfg.Servers, e.logger)
}

// RunOnce executes one pass:
//  1. Load catalog tags (failure is fatal)
//  2. Discover users and the servers that answered (empty is fatal)
//  3. Build every server's index once
//  4. List catalog entries
//  5. For each entry and user: observe, aggregate, reconcile
//
// Per-pair failures are logged and counted in the report; only setup
// failures and cancellation return an error.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()

	e.logger.Info("reconciliation starting",
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.Int("servers", len(e.cfg.Servers)),
		slog.Int("entry_workers", e.cfg.EntryWorkers),
	)

	// Step 1: Catalog tags.
	existing, err := e.cfg.Catalog.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	tags := NewTagCache(e.cfg.Catalog, existing)

	// Step 2: Users.
	disc, err := e.Discover(ctx)
	if err != nil {
		return nil, err
	}

	// Step 3: Indexes.
	builder := NewIndexBuilder(e.cfg.Namespace, e.cfg.Sections, e.cfg.IndexWorkers, e.logger)

	index, err := builder.BuildAll(ctx, disc.Servers)
	if err != nil {
		return nil, fmt.Errorf("building indexes: %w", err)
	}

	for _, srv := range disc.Servers {
		if index.Len(srv.MachineID()) == 0 {
			e.logger.Warn("no titles indexed on server, it will not contribute watched state",
				slog.String("server", srv.Name()),
			)
		}
	}

	// Step 4: Entries.
	entries, err := e.cfg.Catalog.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing entries: %w", ErrCatalogUnavailable, err)
	}

	e.logger.Info("catalog loaded",
		slog.Int("entries", len(entries)),
		slog.Int("tags", len(existing)),
		slog.Int("users", len(disc.Users.Names)),
	)

	report := &Report{
		RunID:   e.cfg.RunID,
		DryRun:  e.cfg.DryRun,
		Servers: len(disc.Servers),
		Users:   len(disc.Users.Names),
		Entries: len(entries),
	}

	if e.cfg.DryRun {
		report.Preview = NewPreviewReport(disc.Users.Names)
	}

	// Step 5: Entries × users.
	p := &pass{
		disc:       disc,
		observer:   NewObserver(index, disc.Owners, e.logger),
		reconciler: NewReconciler(e.cfg.Catalog, tags, e.cfg.TagPrefix, report.Preview, e.logger),
		report:     report,
		logger:     e.logger,
	}

	runErr := e.runEntries(ctx, entries, p)

	report.TagsCreated = tags.Created()
	report.Duration = time.Since(start)

	if runErr != nil {
		return report, runErr
	}

	e.logger.Info("reconciliation complete",
		slog.Duration("duration", report.Duration),
		slog.Int("added", report.Added),
		slog.Int("removed", report.Removed),
		slog.Int("conflicts", report.Conflicts),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// runEntries hands each entry to exactly one worker, so an entry's
// read-modify-save steps never interleave.
func (e *Engine) runEntries(ctx context.Context, entries []Entry, p *pass) error {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.EntryWorkers)

	for i := range entries {
		if ctx.Err() != nil {
			break
		}

		entry := &entries[i]

		g.Go(func() error {
			p.runEntry(ctx, entry)
			return nil
		})
	}

	_ = g.Wait()

	return ctx.Err()
}

// pass is the shared state of one RunOnce.
type pass struct {
	disc       *Discovery
	observer   *Observer
	reconciler *Reconciler
	logger     *slog.Logger

	mu     gosync.Mutex
	report *Report
}

func (p *pass) count(fn func(r *Report)) {
	p.mu.Lock()
	fn(p.report)
	p.mu.Unlock()
}

// runEntry reconciles one entry for every user. A panic is converted to a
// failure for this entry only.
func (p *pass) runEntry(ctx context.Context, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic reconciling %q: %v", entry.Title, r)
			p.logger.Error("entry failed", slog.String("title", entry.Title), slog.String("error", err.Error()))
			p.count(func(rep *Report) {
				rep.Failed++
				rep.Errors = append(rep.Errors, err)
			})
		}
	}()

	if entry.ExternalID.IsZero() {
		p.logger.Info("no external id, skipping", slog.String("title", entry.Title))
		p.count(func(rep *Report) { rep.Skipped++ })

		return
	}

	p.logger.Debug("processing entry",
		slog.String("title", entry.Title),
		slog.String("external_id", entry.ExternalID.String()),
	)

	for _, user := range p.disc.Users.Names {
		if ctx.Err() != nil {
			return
		}

		p.runPair(ctx, entry, user)
	}
}

func (p *pass) runPair(ctx context.Context, entry *Entry, user string) {
	obs := p.observer.Observe(ctx, p.disc.Servers, user, entry)

	// Observations may be partial once canceled; never act on them.
	if ctx.Err() != nil {
		return
	}

	verdict, ok := Aggregate(obs)
	if !ok {
		p.count(func(rep *Report) { rep.Unobserved++ })
		return
	}

	if verdict.Conflict {
		p.logger.Warn("watched state differs between servers, marking watched",
			slog.String("title", entry.Title),
			slog.String("user", user),
			slog.Any("observations", map[string]bool(obs)),
		)
		p.count(func(rep *Report) { rep.Conflicts++ })
	}

	action, err := p.reconciler.Reconcile(ctx, entry, user, verdict)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}

		p.logger.Error("could not update tag",
			slog.String("title", entry.Title),
			slog.String("user", user),
			slog.String("action", action.String()),
			slog.String("error", err.Error()),
		)
		p.count(func(rep *Report) {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Errorf("%s for %s: %w", entry.Title, user, err))
		})

		return
	}

	switch action {
	case ActionAdd:
		p.count(func(rep *Report) { rep.Added++ })
	case ActionRemove:
		p.count(func(rep *Report) { rep.Removed++ })
	}
}
