package apply

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/settings"
	"github.com/maxiofs/guardctl/internal/value"
)

// Status is the per-key result of applying an entry
type Status string

const (
	StatusVerified Status = "verified"
	StatusMismatch Status = "mismatch"
	StatusFailed   Status = "failed"
)

// Outcome records what happened to one entry
type Outcome struct {
	Key      string
	Old      value.Value
	Expected value.Value
	Actual   value.Value
	Status   Status
	Err      error
}

// Report collects outcomes in change-set order
type Report struct {
	Outcomes []Outcome
}

// OK reports whether every entry verified
func (r *Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusVerified {
			return false
		}
	}
	return true
}

// Count returns the number of outcomes with status s
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Problems returns the outcomes that did not verify
func (r *Report) Problems() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status != StatusVerified {
			out = append(out, o)
		}
	}
	return out
}

// Phase is the step an entry is in while a change set is applied
type Phase string

const (
	PhaseWrite  Phase = "write"
	PhaseVerify Phase = "verify"
)

// Options tunes how entries are written
type Options struct {
	// GenericOnly writes every entry through Set, even booleans.
	GenericOnly bool

	// Observe, when set, is called as each entry enters a phase.
	Observe func(phase Phase, key string)
}

func (o Options) observe(phase Phase, key string) {
	if o.Observe != nil {
		o.Observe(phase, key)
	}
}

// Engine commits change sets and verifies them by reading back
type Engine struct {
	store  settings.Store
	logger *logrus.Logger
}

// NewEngine creates an apply/verify engine
func NewEngine(store settings.Store, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{store: store, logger: logger}
}

// Apply writes each entry and immediately re-reads it. A failing key is
// recorded and the remaining keys are still applied; nothing is rolled back.
func (e *Engine) Apply(ctx context.Context, cs changeset.ChangeSet, opts Options) (*Report, error) {
	if len(cs) == 0 {
		return nil, changeset.ErrEmptyChangeSet
	}

	report := &Report{Outcomes: make([]Outcome, 0, len(cs))}
	for _, entry := range cs {
		report.Outcomes = append(report.Outcomes, e.applyOne(ctx, entry, opts))
	}

	e.logger.WithFields(logrus.Fields{
		"entries":    len(cs),
		"verified":   report.Count(StatusVerified),
		"mismatched": report.Count(StatusMismatch),
		"failed":     report.Count(StatusFailed),
	}).Info("Change set applied")

	return report, nil
}

func (e *Engine) applyOne(ctx context.Context, entry changeset.Entry, opts Options) Outcome {
	out := Outcome{Key: entry.Key, Old: entry.Old, Expected: entry.New}

	opts.observe(PhaseWrite, entry.Key)
	var err error
	if entry.New.IsBool() && !opts.GenericOnly {
		err = e.store.SetBool(ctx, entry.Key, entry.New.AsBool())
	} else {
		err = e.store.Set(ctx, entry.Key, entry.New)
	}
	if err != nil {
		e.logger.WithError(err).WithField("key", entry.Key).Error("Failed to write setting")
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	opts.observe(PhaseVerify, entry.Key)
	actual, err := e.store.Get(ctx, entry.Key)
	if err != nil {
		e.logger.WithError(err).WithField("key", entry.Key).Error("Failed to re-read setting")
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	out.Actual = actual

	if value.Equivalent(entry.New, actual) {
		out.Status = StatusVerified
		return out
	}

	e.logger.WithFields(logrus.Fields{
		"key":      entry.Key,
		"expected": entry.New.String(),
		"actual":   actual.String(),
	}).Warn("Setting did not verify after write")
	out.Status = StatusMismatch
	return out
}
