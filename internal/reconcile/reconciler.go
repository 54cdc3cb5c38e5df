package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Decide maps a verdict and the entry's current membership in the user's tag
// to the minimal action.
func Decide(watched, tagged bool) Action {
	switch {
	case watched && !tagged:
		return ActionAdd
	case !watched && tagged:
		return ActionRemove
	default:
		return ActionNone
	}
}

// Reconciler converges one entry's tag for one user to a verdict. In preview
// mode it records planned actions and never touches the catalog.
type Reconciler struct {
	catalog Catalog
	tags    *TagCache
	prefix  string
	preview *PreviewReport
	logger  *slog.Logger
}

// NewReconciler creates a reconciler. A non-nil preview report switches it
// to preview mode.
func NewReconciler(catalog Catalog, tags *TagCache, prefix string, preview *PreviewReport, logger *slog.Logger) *Reconciler {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}

	return &Reconciler{
		catalog: catalog,
		tags:    tags,
		prefix:  prefix,
		preview: preview,
		logger:  logger,
	}
}

// Reconcile applies (or records) the action for user on e. The caller must
// own e: on a successful save its TagIDs are updated in place so later users
// of the same entry see the persisted tag set. On error e is unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, e *Entry, user string, v Verdict) (Action, error) {
	label := Label(r.prefix, user)

	tag, known := r.tags.Lookup(label)
	tagged := known && e.HasTag(tag.ID)

	action := Decide(v.Watched, tagged)
	if action == ActionNone {
		return ActionNone, nil
	}

	if r.preview != nil {
		r.preview.Record(user, action, e)
		return action, nil
	}

	switch action {
	case ActionAdd:
		tag, err := r.tags.Ensure(ctx, label)
		if err != nil {
			return action, err
		}

		// The tag may have been created by another worker since the lookup.
		if e.HasTag(tag.ID) {
			return ActionNone, nil
		}

		tagIDs := append(slices.Clone(e.TagIDs), tag.ID)
		if err := r.save(ctx, e, tagIDs); err != nil {
			return action, err
		}

		r.logger.Info("added tag",
			slog.String("tag", label),
			slog.String("title", e.Title),
		)
	case ActionRemove:
		tagIDs := slices.DeleteFunc(slices.Clone(e.TagIDs), func(id int) bool { return id == tag.ID })
		if err := r.save(ctx, e, tagIDs); err != nil {
			return action, err
		}

		r.logger.Info("removed tag",
			slog.String("tag", label),
			slog.String("title", e.Title),
		)
	}

	return action, nil
}

func (r *Reconciler) save(ctx context.Context, e *Entry, tagIDs []int) error {
	updated := *e
	updated.TagIDs = tagIDs

	if err := r.catalog.UpdateEntry(ctx, updated); err != nil {
		return fmt.Errorf("saving %q: %w", e.Title, err)
	}

	e.TagIDs = tagIDs

	return nil
}
