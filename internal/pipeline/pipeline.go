// Package pipeline drives every mutating command through the same states:
// collect, validate, preview, then either stop (dry run) or confirm, back
// up, apply and verify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/apply"
	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/diff"
	"github.com/maxiofs/guardctl/internal/metrics"
	"github.com/maxiofs/guardctl/internal/settings"
	"github.com/maxiofs/guardctl/internal/validation"
)

var (
	// ErrConfirmationRequired is returned when no operator can be asked
	ErrConfirmationRequired = errors.New("confirmation required: rerun with --force or from an interactive terminal")

	// ErrAborted is returned when the operator declines
	ErrAborted = errors.New("aborted by operator")

	// ErrPartialSuccess is returned when some entries did not verify
	ErrPartialSuccess = errors.New("some changes did not verify")
)

// State is a step of a mutating run
type State string

const (
	StateCollecting State = "collecting"
	StateValidating State = "validating"
	StatePreviewing State = "previewing"
	StateConfirming State = "confirming"
	StateBackingUp  State = "backing-up"
	StateApplying   State = "applying"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
)

// PreviewFormat selects how the plan is printed
type PreviewFormat string

const (
	PreviewText PreviewFormat = "text"
	PreviewJSON PreviewFormat = "json"
)

// Request describes one mutating run
type Request struct {
	Operation string
	Changes   []changeset.Request

	// Flags are the category-qualified toggle flags given on the command line
	Flags []string

	// ManagedOnly rejects keys outside the managed allow-list
	ManagedOnly bool

	// SkipValidation bypasses the rule table (trusted documents)
	SkipValidation bool

	// GenericOnly writes booleans through the generic setter
	GenericOnly bool

	DryRun bool
	Force  bool

	// Backup captures BackupScope before applying. The zero scope means
	// the keys of the change set.
	Backup      bool
	BackupScope *backup.Scope

	PreviewLimit  int
	PreviewFormat PreviewFormat
}

// Result is what a run produced
type Result struct {
	ChangeSet changeset.ChangeSet
	Backup    *backup.Backup
	Report    *apply.Report
	DryRun    bool
	Trace     []State
}

// Deps are the collaborators of a Runner
type Deps struct {
	Store     settings.Store
	Validator *validation.Validator
	Renderer  *diff.Renderer
	Backups   *backup.Store
	Confirmer Confirmer
	Audit     *audit.Manager
	Metrics   *metrics.Recorder
	Out       io.Writer
	Logger    *logrus.Logger
}

// Runner executes mutating requests
type Runner struct {
	builder   *changeset.Builder
	engine    *apply.Engine
	validator *validation.Validator
	renderer  *diff.Renderer
	backups   *backup.Store
	confirmer Confirmer
	audit     *audit.Manager
	metrics   *metrics.Recorder
	out       io.Writer
	logger    *logrus.Logger
}

// NewRunner creates a runner
func NewRunner(d Deps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = logrus.New()
	}
	renderer := d.Renderer
	if renderer == nil {
		renderer = diff.NewRenderer(diff.DefaultTruncate, false)
	}
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	confirmer := d.Confirmer
	if confirmer == nil {
		confirmer = NewTerminalConfirmer()
	}
	return &Runner{
		builder:   changeset.NewBuilder(d.Store, logger),
		engine:    apply.NewEngine(d.Store, logger),
		validator: d.Validator,
		renderer:  renderer,
		backups:   d.Backups,
		confirmer: confirmer,
		audit:     d.Audit,
		metrics:   d.Metrics,
		out:       out,
		logger:    logger,
	}
}

// enter records a state transition; re-entering the current state is a no-op
func (r *Runner) enter(res *Result, s State) {
	if n := len(res.Trace); n > 0 && res.Trace[n-1] == s {
		return
	}
	res.Trace = append(res.Trace, s)
	r.logger.WithField("state", s).Debug("Pipeline state")
}

// Run takes a request through the state machine. Nothing is written to the
// settings store unless the run reaches the applying state, and that state
// is only reachable through a confirmation or Force.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	r.enter(res, StateCollecting)
	if len(req.Changes) == 0 {
		// a contradictory flag pair yields no edits; name the conflict instead
		if r.validator != nil {
			if err := r.validator.CheckFlags(req.Flags); err != nil {
				return res, err
			}
		}
		return res, changeset.ErrEmptyChangeSet
	}

	r.enter(res, StateValidating)
	if err := r.validate(req); err != nil {
		return res, err
	}

	r.enter(res, StatePreviewing)
	cs, err := r.builder.Build(ctx, req.Changes)
	if err != nil {
		return res, err
	}
	res.ChangeSet = cs
	if err := r.preview(req, cs); err != nil {
		return res, fmt.Errorf("failed to render preview: %w", err)
	}

	if req.DryRun {
		res.DryRun = true
		r.enter(res, StateDone)
		if req.PreviewFormat != PreviewJSON {
			fmt.Fprintln(r.out, "Dry run: no changes applied.")
		}
		return res, nil
	}

	r.enter(res, StateConfirming)
	if err := r.confirm(ctx, req, cs); err != nil {
		return res, err
	}

	if req.Backup {
		r.enter(res, StateBackingUp)
		b, err := r.capture(ctx, req, cs)
		if err != nil {
			return res, err
		}
		res.Backup = b
	}

	r.enter(res, StateApplying)
	report, err := r.engine.Apply(ctx, cs, apply.Options{
		GenericOnly: req.GenericOnly,
		Observe: func(phase apply.Phase, key string) {
			if phase == apply.PhaseVerify {
				r.enter(res, StateVerifying)
			} else {
				r.enter(res, StateApplying)
			}
		},
	})
	if err != nil {
		return res, err
	}
	res.Report = report

	r.audit.LogReport(ctx, req.Operation, report)
	r.metrics.ObserveReport(req.Operation, report)

	r.enter(res, StateDone)
	if !report.OK() {
		return res, fmt.Errorf("%w: %d of %d entries", ErrPartialSuccess, len(report.Problems()), len(report.Outcomes))
	}
	return res, nil
}

func (r *Runner) validate(req Request) error {
	if r.validator == nil {
		return nil
	}
	if req.SkipValidation {
		return r.validator.CheckFlags(req.Flags)
	}
	return r.validator.Validate(req.Changes, req.Flags, req.ManagedOnly)
}

func (r *Runner) preview(req Request, cs changeset.ChangeSet) error {
	if req.PreviewFormat == PreviewJSON {
		return r.renderer.JSON(r.out, cs)
	}
	fmt.Fprintf(r.out, "Planned changes (%d, %d differ from current values):\n", len(cs), cs.Changed())
	return r.renderer.Preview(r.out, cs, req.PreviewLimit)
}

func (r *Runner) confirm(ctx context.Context, req Request, cs changeset.ChangeSet) error {
	if req.Force {
		return nil
	}
	// machine-readable output cannot be interleaved with a prompt
	if req.PreviewFormat == PreviewJSON {
		return ErrConfirmationRequired
	}

	ok, err := r.confirmer.Confirm(fmt.Sprintf("Apply %d change(s)?", len(cs)))
	if err != nil {
		return err
	}
	if !ok {
		r.audit.LogEvent(ctx, &audit.Event{
			Operation: req.Operation,
			Status:    audit.StatusAborted,
			Detail:    fmt.Sprintf("%d change(s) declined", len(cs)),
		})
		return ErrAborted
	}
	return nil
}

func (r *Runner) capture(ctx context.Context, req Request, cs changeset.ChangeSet) (*backup.Backup, error) {
	if r.backups == nil {
		return nil, errors.New("backup requested but no backup store is configured")
	}

	scope := backup.ScopeKeys(cs.Keys())
	if req.BackupScope != nil {
		scope = *req.BackupScope
	}

	b, err := r.backups.Capture(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to back up current values: %w", err)
	}

	r.audit.LogEvent(ctx, &audit.Event{
		Operation: audit.OperationBackup,
		Status:    audit.StatusCaptured,
		Detail:    b.ID,
	})
	r.metrics.BackupCreated()

	if req.PreviewFormat != PreviewJSON {
		fmt.Fprintf(r.out, "Backup created: %s\n", b.ID)
	}
	return b, nil
}
