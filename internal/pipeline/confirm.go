package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks the operator to approve a plan
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// TerminalConfirmer prompts on a terminal. It refuses to prompt when the
// input is not interactive; callers must pass --force instead.
type TerminalConfirmer struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

// NewTerminalConfirmer prompts on stdin/stderr
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{
		In:  os.Stdin,
		Out: os.Stderr,
		Interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Confirm blocks until the operator answers. Anything but y/yes declines.
func (c *TerminalConfirmer) Confirm(prompt string) (bool, error) {
	if c.Interactive != nil && !c.Interactive() {
		return false, ErrConfirmationRequired
	}

	fmt.Fprintf(c.Out, "%s [y/N]: ", prompt)

	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Always is a Confirmer with a fixed answer
type Always bool

// Confirm returns the fixed answer
func (a Always) Confirm(string) (bool, error) { return bool(a), nil }
