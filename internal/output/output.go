// Package output provides consistent CLI output formatting. Color is
// enabled only when writing to a terminal.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes used when the output is a terminal.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorDim    = "\033[2m"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer; color is detected from the destination.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, useColor: useColor}
}

func (w *Writer) colored(color, msg string) string {
	if !w.useColor {
		return msg
	}
	return color + msg + colorReset
}

// Println writes a plain line.
func (w *Writer) Println(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Printf writes formatted text.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Success prints a green success line.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintln(w.out, w.colored(colorGreen, "✓ ")+msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintln(w.out, w.colored(colorYellow, "! ")+msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a red error line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintln(w.out, w.colored(colorRed, "✗ ")+msg)
}

// Result prints a ranked search result with a dimmed score.
func (w *Writer) Result(rank int, path string, score float32) {
	_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n",
		rank, path, w.colored(colorDim, fmt.Sprintf("(%.3f)", score)))
}

// Field prints an aligned key/value line for status output.
func (w *Writer) Field(name string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-16s %v\n", name+":", value)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
