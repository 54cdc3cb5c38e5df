package reconcile

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultTagPrefix is prepended to a user's display name to form the label
// of their watched tag.
const DefaultTagPrefix = "watched_by_"

// Label returns the catalog tag label for user: the NFC-normalized,
// lowercased concatenation of prefix and user. Composed and decomposed
// spellings of the same name map to the same label.
func Label(prefix, user string) string {
	// cases.Caser carries state and is not safe for concurrent use.
	return cases.Lower(language.Und).String(norm.NFC.String(prefix + user))
}

// labelKey is the cache key for a label. Catalogs compare labels
// case-insensitively, so the cache does too.
func labelKey(label string) string {
	return strings.ToLower(norm.NFC.String(label))
}

// TagCache resolves tag labels to catalog tags, creating missing tags lazily.
// It is seeded from the catalog's tag list and is additive afterwards: each
// label is created at most once per run, even under concurrent callers.
type TagCache struct {
	catalog Catalog

	mu     gosync.RWMutex
	byKey  map[string]Tag
	group  singleflight.Group
	create int
}

// NewTagCache seeds a cache with the catalog's existing tags.
func NewTagCache(catalog Catalog, existing []Tag) *TagCache {
	c := &TagCache{
		catalog: catalog,
		byKey:   make(map[string]Tag, len(existing)),
	}

	for _, t := range existing {
		key := labelKey(t.Label)
		if _, dup := c.byKey[key]; !dup {
			c.byKey[key] = t
		}
	}

	return c
}

// Lookup returns the tag for label if it already exists. It never creates.
func (c *TagCache) Lookup(label string) (Tag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byKey[labelKey(label)]

	return t, ok
}

// Ensure returns the tag for label, creating it in the catalog on first need.
// Concurrent callers for the same label share one CreateTag call. A failed
// create is not cached, so a later caller may retry it.
func (c *TagCache) Ensure(ctx context.Context, label string) (Tag, error) {
	if t, ok := c.Lookup(label); ok {
		return t, nil
	}

	key := labelKey(label)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if t, ok := c.Lookup(label); ok {
			return t, nil
		}

		t, err := c.catalog.CreateTag(ctx, label)
		if err != nil {
			return Tag{}, fmt.Errorf("creating tag %q: %w", label, err)
		}

		c.mu.Lock()
		c.byKey[key] = t
		c.create++
		c.mu.Unlock()

		return t, nil
	})
	if err != nil {
		return Tag{}, err
	}

	return v.(Tag), nil
}

// Created returns how many tags this cache created.
func (c *TagCache) Created() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.create
}
