package audit

import "context"

// Operations
const (
	OperationSet       = "set"
	OperationConfigure = "configure"
	OperationImport    = "import"
	OperationRestore   = "restore"
	OperationBackup    = "backup"
)

// Status
const (
	StatusVerified = "verified"
	StatusMismatch = "mismatch"
	StatusFailed   = "failed"
	StatusCaptured = "captured"
	StatusAborted  = "aborted"
)

// Event is a single change to be recorded
type Event struct {
	RunID     string // Invocation the change belongs to
	Origin    string // Host that ran the change
	Operation string // Command that produced the change (see Operations)
	Key       string // Setting key; empty for run-level events
	OldValue  string // Display form of the value before the change
	NewValue  string // Display form of the requested value
	Status    string // Outcome (see Status)
	Detail    string // Free-form detail, e.g. a backup identifier or error
}

// Record is a stored audit event
type Record struct {
	ID        int64  `json:"id" yaml:"id"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	RunID     string `json:"run_id" yaml:"run_id"`
	Origin    string `json:"origin" yaml:"origin"`
	Operation string `json:"operation" yaml:"operation"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	OldValue  string `json:"old,omitempty" yaml:"old,omitempty"`
	NewValue  string `json:"new,omitempty" yaml:"new,omitempty"`
	Status    string `json:"status" yaml:"status"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Filters for querying history
type Filters struct {
	RunID     string // Filter by run
	Operation string // Filter by operation
	Key       string // Filter by setting key
	Status    string // Filter by status
	Limit     int    // Maximum records, newest first
}

// Store defines the interface for audit storage
type Store interface {
	// Record stores an audit event
	Record(ctx context.Context, event *Event) error

	// List retrieves events newest first
	List(ctx context.Context, filters *Filters) ([]*Record, error)

	// Purge deletes events older than the given number of days
	Purge(ctx context.Context, olderThanDays int) (int, error)

	// Close closes the store
	Close() error
}
