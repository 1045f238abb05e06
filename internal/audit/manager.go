package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/apply"
	"github.com/maxiofs/guardctl/internal/diff"
)

// Manager stamps events with the current run and writes them to a Store.
// Failures are logged and never surface to the caller: an audit outage
// must not fail a configuration change.
type Manager struct {
	store  Store
	runID  string
	origin string
	logger *logrus.Logger
	render *diff.Renderer
}

// NewManager creates a new audit manager for one run
func NewManager(store Store, runID, origin string, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		store:  store,
		runID:  runID,
		origin: origin,
		logger: logger,
		render: diff.NewRenderer(diff.DefaultTruncate, false),
	}
}

// LogEvent records an event. A nil manager is a no-op so callers need not
// check whether auditing is enabled.
func (m *Manager) LogEvent(ctx context.Context, event *Event) {
	if m == nil || event == nil {
		return
	}

	if event.Operation == "" || event.Status == "" {
		m.logger.Warn("Audit event missing operation or status")
		return
	}

	event.RunID = m.runID
	event.Origin = m.origin

	if err := m.store.Record(ctx, event); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"operation": event.Operation,
			"key":       event.Key,
			"status":    event.Status,
		}).Error("Failed to record audit event")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"operation": event.Operation,
		"key":       event.Key,
		"status":    event.Status,
	}).Debug("Audit event recorded")
}

// LogReport records one event per applied entry
func (m *Manager) LogReport(ctx context.Context, operation string, report *apply.Report) {
	if m == nil || report == nil {
		return
	}
	for _, o := range report.Outcomes {
		event := &Event{
			Operation: operation,
			Key:       o.Key,
			OldValue:  m.render.Value(o.Old),
			NewValue:  m.render.Value(o.Expected),
			Status:    string(o.Status),
		}
		switch {
		case o.Err != nil:
			event.Detail = o.Err.Error()
		case o.Status == apply.StatusMismatch:
			event.Detail = "read back " + m.render.Value(o.Actual)
		}
		m.LogEvent(ctx, event)
	}
}

// History returns recent events, newest first
func (m *Manager) History(ctx context.Context, filters *Filters) ([]*Record, error) {
	if filters == nil {
		filters = &Filters{}
	}
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	records, err := m.store.List(ctx, filters)
	if err != nil {
		m.logger.WithError(err).Error("Failed to retrieve audit history")
		return nil, err
	}
	return records, nil
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}
