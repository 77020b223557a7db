// Package skiplist holds the set of table names that are exempt from predicate injection.
package skiplist

import (
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is a concurrent, case-insensitive set of table names.
// The zero value is not usable; create one with New.
type Registry struct {
	tables *xsync.Map[string, struct{}]
}

// New creates a registry seeded with the given tables.
func New(tables ...string) *Registry {
	r := &Registry{tables: xsync.NewMap[string, struct{}]()}
	for _, t := range tables {
		r.Add(t)
	}
	return r
}

func normalize(table string) string {
	return strings.ToLower(strings.TrimSpace(table))
}

// Add exempts table from rewriting. Blank names are ignored.
func (r *Registry) Add(table string) {
	key := normalize(table)
	if key == "" {
		return
	}
	r.tables.Store(key, struct{}{})
}

// Remove drops table from the registry. Removing an absent table is a no-op.
func (r *Registry) Remove(table string) {
	r.tables.Delete(normalize(table))
}

// Contains reports whether table is exempt.
func (r *Registry) Contains(table string) bool {
	if r == nil {
		return false
	}
	_, ok := r.tables.Load(normalize(table))
	return ok
}

// Tables returns a sorted snapshot of the registered names.
func (r *Registry) Tables() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, r.tables.Size())
	r.tables.Range(func(key string, _ struct{}) bool {
		out = append(out, key)
		return true
	})
	sort.Strings(out)
	return out
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return r.tables.Size()
}
