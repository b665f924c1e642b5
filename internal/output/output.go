// Package output provides consistent CLI output: status lines, aligned
// key/value blocks, path lists and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Format selects the output encoding of data commands.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" (or "") and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	key      lipgloss.Style
	dim      lipgloss.Style
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// NewWithColor creates a Writer that styles keys and hints when useColor is set.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	w := New(out)
	w.useColor = useColor
	if useColor {
		w.key = lipgloss.NewStyle().Bold(true)
		w.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
	return w
}

// Status prints a message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✅", fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠️ ", fmt.Sprintf(format, args...))
}

// Hint prints a dimmed secondary line.
func (w *Writer) Hint(msg string) {
	if w.useColor {
		msg = w.dim.Render(msg)
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// KV is one row of a key/value block.
type KV struct {
	Key   string
	Value string
}

// KeyValues prints rows with values aligned after the longest key.
func (w *Writer) KeyValues(rows []KV) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.Key))
	}
	for _, r := range rows {
		key := fmt.Sprintf("%-*s", width+1, r.Key+":")
		if w.useColor {
			key = w.key.Render(key)
		}
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", key, r.Value)
	}
}

// Lines prints one item per line, unadorned, so output pipes into other tools.
func (w *Writer) Lines(items []string) {
	for _, it := range items {
		_, _ = fmt.Fprintln(w.out, it)
	}
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
