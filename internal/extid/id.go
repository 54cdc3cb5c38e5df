// Package extid provides the external-catalog identifier used to join
// catalog entries with media-server library items. Media servers publish
// these as GUID strings of the form "<namespace>://<id>"; catalogs store the
// bare numeric ID.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package extid

import (
	"fmt"
	"strconv"
	"strings"
)

// Namespace names an external ID scheme, e.g. "tmdb".
type Namespace string

// Known namespaces.
const (
	TMDB Namespace = "tmdb"
	TVDB Namespace = "tvdb"
)

// guidSeparator separates the namespace from the value in a GUID.
const guidSeparator = "://"

// Prefix returns the GUID prefix for the namespace ("tmdb://").
func (ns Namespace) Prefix() string {
	return string(ns) + guidSeparator
}

// Valid reports whether ns is one of the known numeric namespaces.
func (ns Namespace) Valid() bool {
	switch ns {
	case TMDB, TVDB:
		return true
	default:
		return false
	}
}

// ID is a positive numeric identifier within one namespace. The zero value
// means "absent"; entries carrying it cannot be reconciled.
type ID int64

// IsZero reports whether the ID is absent.
func (id ID) IsZero() bool {
	return id <= 0
}

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// GUID renders the ID as a namespaced GUID ("tmdb://603").
func (id ID) GUID(ns Namespace) string {
	return ns.Prefix() + id.String()
}

// ParseGUID extracts the ID from a GUID in the given namespace. It returns an
// error when the GUID belongs to another namespace or its value is not a
// positive integer.
func ParseGUID(ns Namespace, guid string) (ID, error) {
	rest, ok := strings.CutPrefix(guid, ns.Prefix())
	if !ok {
		return 0, fmt.Errorf("extid: %q is not in namespace %q", guid, ns)
	}

	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("extid: parsing %q: %w", guid, err)
	}

	if n <= 0 {
		return 0, fmt.Errorf("extid: %q has non-positive id", guid)
	}

	return ID(n), nil
}

// FirstMatch scans guids in order and returns the first one that belongs to
// ns and parses. GUIDs in ns that fail to parse are skipped so later GUIDs in
// the same namespace still get a chance. ok is false when nothing matched.
func FirstMatch(ns Namespace, guids []string) (id ID, ok bool) {
	for _, g := range guids {
		if !strings.HasPrefix(g, ns.Prefix()) {
			continue
		}

		parsed, err := ParseGUID(ns, g)
		if err != nil {
			continue
		}

		return parsed, true
	}

	return 0, false
}
