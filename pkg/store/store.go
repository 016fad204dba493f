// Package store provides the key-value persistence used to remember which
// sessions a device has already relayed.
//
// A SetStore maps a key to a set of strings. Three backends are provided:
// MemoryStore (lost on exit), FileStore (a YAML document) and SQLiteStore.
package store

import (
	"errors"
	"sort"
)

// ErrClosed is returned when a store is used after Close.
var ErrClosed = errors.New("store: closed")

// SetStore persists string sets by key.
//
// All methods must be safe for concurrent use.
type SetStore interface {
	// GetSet returns the members stored under key. A missing key yields an
	// empty set and no error.
	GetSet(key string) ([]string, error)

	// PutSet replaces the members stored under key.
	PutSet(key string, members []string) error
}

// normalize returns members sorted and de-duplicated, as a new slice.
func normalize(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
