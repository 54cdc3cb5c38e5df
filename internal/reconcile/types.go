// Package reconcile implements the watched-tag reconciliation pass: it indexes
// every media server's libraries by external ID, discovers the users visible
// across servers, observes each user's watched flag per title on every server,
// aggregates those observations into one verdict, and converges the catalog's
// per-user "watched" tags to that verdict, or records the planned changes in
// preview mode.
//
// The package performs no HTTP itself. Media servers and the catalog are
// consumed through the MediaServer, WatchView and Catalog interfaces.
package reconcile

import (
	"context"
	"errors"

	"github.com/tonimelisma/watchsync/internal/extid"
)

// ErrNotFound marks lookup misses reported by collaborators: a missing
// library section, or an item that does not exist for the requesting user.
// Misses are skipped silently, never escalated.
var ErrNotFound = errors.New("reconcile: not found")

// Fatal run errors.
var (
	ErrNoServers          = errors.New("reconcile: no media servers available")
	ErrNoUsers            = errors.New("reconcile: no users discovered")
	ErrCatalogUnavailable = errors.New("reconcile: catalog unavailable")
)

// WatchView answers watched-state queries as one account on one server.
type WatchView interface {
	// IsWatched returns the account's watched flag for a server-local item
	// reference. Returns an error wrapping ErrNotFound when the item does not
	// exist for the account.
	IsWatched(ctx context.Context, ref string) (bool, error)
}

// MediaServer is one connected media server. The embedded WatchView answers
// as the server's owner account.
type MediaServer interface {
	WatchView

	// Name is the server's friendly name, used in logs and observations.
	Name() string

	// MachineID is a stable identifier used to key per-server tables.
	MachineID() string

	// Accounts returns the display name of the account owning the server and
	// of every account it manages or shares with.
	Accounts(ctx context.Context) (owner string, managed []string, err error)

	// LibraryItems lists every item of the named section. Returns an error
	// wrapping ErrNotFound when the section does not exist.
	LibraryItems(ctx context.Context, section string) ([]LibraryItem, error)

	// AsUser returns an independent view of the server acting as user. The
	// server handle itself is not modified.
	AsUser(ctx context.Context, user string) (WatchView, error)
}

// LibraryItem is one media-server library item with its cross-reference
// identifiers ("tmdb://603", "imdb://tt0133093", ...).
type LibraryItem struct {
	Ref   string
	Title string
	GUIDs []string
}

// Catalog is the tag-owning management service.
type Catalog interface {
	Entries(ctx context.Context) ([]Entry, error)
	Tags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, label string) (Tag, error)

	// UpdateEntry persists the entry's tag set.
	UpdateEntry(ctx context.Context, e Entry) error
}

// Entry is a catalog title. A zero ExternalID makes the entry unreconcilable.
type Entry struct {
	ID         int
	ExternalID extid.ID
	Title      string
	TagIDs     []int
}

// HasTag reports whether the entry carries tag id.
func (e *Entry) HasTag(id int) bool {
	for _, t := range e.TagIDs {
		if t == id {
			return true
		}
	}

	return false
}

// Tag is a catalog tag.
type Tag struct {
	ID    int
	Label string
}

// Action is the change the reconciler makes to one (entry, user) pair.
type Action int

// Reconciler actions.
const (
	ActionNone Action = iota
	ActionAdd
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}
