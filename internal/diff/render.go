// Package diff renders values and change sets for the console and for
// machine-readable previews. Truncation only ever affects what is printed.
package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/value"
)

const (
	// DefaultTruncate is the display width after which strings are cut
	DefaultTruncate = 100

	// EmptyMarker is printed for empty strings so they differ from null
	EmptyMarker = "(empty)"

	// Ellipsis marks a truncated string
	Ellipsis = "..."
)

var (
	keyStyle       = lipgloss.NewStyle().Bold(true)
	oldStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Red
	newStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))  // Green
	unchangedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")) // Dim
)

// Renderer formats values and change sets
type Renderer struct {
	truncate int
	styled   bool
}

// NewRenderer creates a renderer. truncate <= 0 selects DefaultTruncate;
// styled enables terminal colours.
func NewRenderer(truncate int, styled bool) *Renderer {
	if truncate <= 0 {
		truncate = DefaultTruncate
	}
	return &Renderer{truncate: truncate, styled: styled}
}

// Value formats a single value for display
func (r *Renderer) Value(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindString:
		s := v.Text()
		if s == "" {
			return EmptyMarker
		}
		return r.cut(s)
	default:
		return v.Text()
	}
}

func (r *Renderer) cut(s string) string {
	if utf8.RuneCountInString(s) <= r.truncate {
		return s
	}
	runes := []rune(s)
	return string(runes[:r.truncate]) + Ellipsis
}

func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

// Line renders one before/after entry
func (r *Renderer) Line(e changeset.Entry) string {
	key := r.paint(keyStyle, e.Key)
	if e.Unchanged() {
		return fmt.Sprintf("  %s: %s %s", key, r.Value(e.New), r.paint(unchangedStyle, "(unchanged)"))
	}
	return fmt.Sprintf("  %s: %s -> %s",
		key,
		r.paint(oldStyle, r.Value(e.Old)),
		r.paint(newStyle, r.Value(e.New)),
	)
}

// Preview writes before/after lines for up to limit entries (all when
// limit <= 0) followed by a count of the entries left out.
func (r *Renderer) Preview(w io.Writer, cs changeset.ChangeSet, limit int) error {
	shown := len(cs)
	if limit > 0 && limit < shown {
		shown = limit
	}

	var b strings.Builder
	for _, e := range cs[:shown] {
		b.WriteString(r.Line(e))
		b.WriteByte('\n')
	}
	if rest := len(cs) - shown; rest > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", rest)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes the change set as an indented JSON array of {key, old, new}
func (r *Renderer) JSON(w io.Writer, cs changeset.ChangeSet) error {
	if cs == nil {
		cs = changeset.ChangeSet{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cs)
}
