package changeset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/value"
)

// ErrEmptyChangeSet is returned when a request names no keys at all
var ErrEmptyChangeSet = errors.New("no changes specified")

// Request is one requested edit, already coerced to its typed value.
type Request struct {
	Key   string
	Value value.Value
	Hint  value.Hint
}

// Entry pairs a key's value at build time with its requested value
type Entry struct {
	Key string
	Old value.Value
	New value.Value
}

// Unchanged reports whether applying the entry would be a no-op write
func (e Entry) Unchanged() bool {
	return e.Old.Kind() == e.New.Kind() && value.Equivalent(e.New, e.Old)
}

// MarshalJSON renders the entry for machine-readable previews
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key string `json:"key"`
		Old any    `json:"old"`
		New any    `json:"new"`
	}{e.Key, e.Old.Interface(), e.New.Interface()})
}

// ChangeSet is an ordered list of entries. Old values are captured once at
// build time and never re-read while applying.
type ChangeSet []Entry

// Keys returns the keys in order
func (cs ChangeSet) Keys() []string {
	keys := make([]string, len(cs))
	for i, e := range cs {
		keys[i] = e.Key
	}
	return keys
}

// Changed counts entries whose new value differs from the old one
func (cs ChangeSet) Changed() int {
	n := 0
	for _, e := range cs {
		if !e.Unchanged() {
			n++
		}
	}
	return n
}

// Reader is the read side of the settings store
type Reader interface {
	Get(ctx context.Context, key string) (value.Value, error)
}

// Builder turns requests into a ChangeSet against live values
type Builder struct {
	store  Reader
	logger *logrus.Logger
}

// NewBuilder creates a change-set builder
func NewBuilder(store Reader, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{store: store, logger: logger}
}

// Build reads each requested key exactly once and pairs it with the new
// value, preserving the caller's ordering. A key requested twice keeps its
// first position and its last value.
func (b *Builder) Build(ctx context.Context, reqs []Request) (ChangeSet, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyChangeSet
	}

	index := make(map[string]int, len(reqs))
	var cs ChangeSet
	for _, req := range reqs {
		if req.Key == "" {
			return nil, fmt.Errorf("empty setting key in request")
		}
		if i, seen := index[req.Key]; seen {
			cs[i].New = req.Value
			continue
		}

		old, err := b.store.Get(ctx, req.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read current value of %s: %w", req.Key, err)
		}

		index[req.Key] = len(cs)
		cs = append(cs, Entry{Key: req.Key, Old: old, New: req.Value})
	}

	b.logger.WithFields(logrus.Fields{
		"entries": len(cs),
		"changed": cs.Changed(),
	}).Debug("Change set built")

	return cs, nil
}
