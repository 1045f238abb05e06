package cli

import (
	"errors"

	"github.com/maxiofs/guardctl/internal/pipeline"
)

// Process exit codes
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
	ExitAborted = 3
)

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, pipeline.ErrPartialSuccess):
		return ExitPartial
	case errors.Is(err, pipeline.ErrAborted):
		return ExitAborted
	default:
		return ExitFatal
	}
}

func resultLabel(err error) string {
	switch ExitCode(err) {
	case ExitOK:
		return "success"
	case ExitPartial:
		return "partial"
	case ExitAborted:
		return "aborted"
	default:
		return "error"
	}
}
