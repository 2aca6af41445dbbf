// File: internal/clipboard/clipboard.go
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/mattn/go-isatty"
)

// ErrNotTerminal is returned when the output cannot interpret OSC 52.
var ErrNotTerminal = errors.New("clipboard: output is not a terminal")

// Writer copies text to the system clipboard through the terminal, using the
// OSC 52 escape sequence. It works over SSH and inside tmux or screen.
type Writer struct {
	out    io.Writer
	force  bool
	getenv func(string) string
}

// Option configures a Writer.
type Option func(*Writer)

// WithForce writes the sequence even when out is not a terminal.
func WithForce(force bool) Option {
	return func(w *Writer) { w.force = force }
}

// WithEnv overrides the environment lookup used to detect multiplexers.
func WithEnv(getenv func(string) string) Option {
	return func(w *Writer) { w.getenv = getenv }
}

// New creates a Writer emitting to out.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{out: out, getenv: os.Getenv}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Copy places text on the clipboard.
func (w *Writer) Copy(text string) error {
	if !w.force && !IsTerminal(w.out) {
		return ErrNotTerminal
	}

	seq := osc52.New(text)
	switch {
	case w.getenv("TMUX") != "":
		seq = seq.Tmux()
	case w.getenv("STY") != "":
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(w.out); err != nil {
		return fmt.Errorf("failed to write clipboard sequence: %w", err)
	}
	return nil
}

// IsTerminal reports whether out is an interactive terminal.
func IsTerminal(out io.Writer) bool {
	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
