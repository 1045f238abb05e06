package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/apply"
)

const namespace = "guardctl"

// Recorder collects the counters of one run and writes them to a
// node-exporter textfile. A nil Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry
	path     string
	logger   *logrus.Logger

	changesApplied       *prometheus.CounterVec
	verificationMismatch *prometheus.CounterVec
	backupsCreated       prometheus.Counter
	lastRunTimestamp     *prometheus.GaugeVec
}

// NewRecorder creates a recorder writing to path. An empty path disables
// metrics and returns nil.
func NewRecorder(path string, logger *logrus.Logger) *Recorder {
	if path == "" {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		path:     path,
		logger:   logger,
	}

	r.changesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_applied_total",
			Help:      "Setting writes attempted, by operation and verification status",
		},
		[]string{"operation", "status"},
	)
	r.verificationMismatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_mismatches_total",
			Help:      "Writes whose read-back value did not match",
		},
		[]string{"operation"},
	)
	r.backupsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_created_total",
			Help:      "Backups captured",
		},
	)
	r.lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last run, by operation and result",
		},
		[]string{"operation", "result"},
	)

	r.registry.MustRegister(
		r.changesApplied,
		r.verificationMismatch,
		r.backupsCreated,
		r.lastRunTimestamp,
	)
	return r
}

// ObserveReport counts the outcomes of an applied change set
func (r *Recorder) ObserveReport(operation string, report *apply.Report) {
	if r == nil || report == nil {
		return
	}
	for _, o := range report.Outcomes {
		r.changesApplied.WithLabelValues(operation, string(o.Status)).Inc()
		if o.Status == apply.StatusMismatch {
			r.verificationMismatch.WithLabelValues(operation).Inc()
		}
	}
}

// BackupCreated counts a captured backup
func (r *Recorder) BackupCreated() {
	if r == nil {
		return
	}
	r.backupsCreated.Inc()
}

// Finish stamps the run and writes the textfile
func (r *Recorder) Finish(operation, result string, at time.Time) error {
	if r == nil {
		return nil
	}
	r.lastRunTimestamp.WithLabelValues(operation, result).Set(float64(at.Unix()))

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	r.logger.WithField("path", r.path).Debug("Metrics textfile written")
	return nil
}

// Gatherer exposes the registry for tests and other exporters
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
