package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxiofs/guardctl/internal/catalog"
)

// KeyLister is the part of the settings store needed to enumerate keys
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Filter narrows the set of keys an export (or listing) covers. Criteria
// combine; the zero Filter selects every key in the store.
type Filter struct {
	Search      string
	Category    string
	ManagedOnly bool
}

// Describe renders the filter for log lines
func (f Filter) Describe() string {
	var parts []string
	if f.Category != "" {
		parts = append(parts, "category="+f.Category)
	}
	if f.Search != "" {
		parts = append(parts, "search="+f.Search)
	}
	if f.ManagedOnly {
		parts = append(parts, "managed-only")
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}

// Select returns the store's keys matching the filter, in key order.
func (f Filter) Select(ctx context.Context, store KeyLister, cat *catalog.Catalog) ([]string, error) {
	var category catalog.Category
	if f.Category != "" {
		c, ok := cat.Category(f.Category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", f.Category)
		}
		category = c
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(f.Search)
	var out []string
	for _, key := range keys {
		if f.ManagedOnly && !cat.IsManaged(key) {
			continue
		}
		if f.Category != "" && !category.Matches(key) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(key), needle) {
			continue
		}
		out = append(out, key)
	}
	return out, nil
}
