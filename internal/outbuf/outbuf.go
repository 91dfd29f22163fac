// Package outbuf chooses whether output should carry ANSI color codes
// and wraps the chosen writer accordingly. There are exactly four
// kinds of sink this tool ever writes to, and each has a fixed color
// policy; the caller only gets to adjust policy within the bounds
// that variant allows.
package outbuf

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ColorMode is the user-requested color preference (--color).
type ColorMode int

const (
	Auto ColorMode = iota
	Always
	Never
)

// Kind identifies which of the four fixed sink variants a Buffer wraps.
type Kind int

const (
	// File is an explicit --output file: always ANSI-escaped, color
	// stripping is never applied regardless of the requested mode.
	File Kind = iota
	// StdoutTTY is stdout when it is attached to a terminal: color
	// follows ColorMode as requested.
	StdoutTTY
	// Stderr is always used for progress meters and diagnostics.
	Stderr
	// StdoutRedirect is stdout piped or redirected to a non-terminal.
	StdoutRedirect
)

// Buffer is a color-aware output sink.
type Buffer struct {
	w        io.Writer
	kind     Kind
	useColor bool
}

// New resolves how w (of the given Kind) should render color, given
// the user's requested mode, and returns a ready-to-use Buffer.
func New(w io.Writer, kind Kind, mode ColorMode) *Buffer {
	return &Buffer{w: w, kind: kind, useColor: resolveColor(kind, mode)}
}

func resolveColor(kind Kind, mode ColorMode) bool {
	switch kind {
	case File:
		// Always ANSI-escaped: a file is never "the terminal", so there's
		// nothing to auto-detect, and stripping would defeat the purpose
		// of asking for a file in the first place.
		return true
	case Stderr:
		return mode != Never
	case StdoutTTY:
		switch mode {
		case Always:
			return true
		case Never:
			return false
		default:
			return true
		}
	case StdoutRedirect:
		switch mode {
		case Always:
			// Always upgrades to AlwaysAnsi: force color even though we're
			// not talking to a terminal.
			return true
		default:
			// Auto downgrades to Never: no terminal to render escapes for.
			return false
		}
	}
	return false
}

// UseColor reports whether this Buffer will emit ANSI escapes.
func (b *Buffer) UseColor() bool { return b.useColor }

// Kind reports which sink variant this Buffer wraps.
func (b *Buffer) Kind() Kind { return b.kind }

func (b *Buffer) Write(p []byte) (int, error) { return b.w.Write(p) }

const testModeEnv = "XH_TEST_MODE_TERM"

// IsTerminal reports whether w should be treated as an interactive
// terminal: either it really is one, or XH_TEST_MODE_TERM forces the
// answer for reproducible golden-file tests.
func IsTerminal(w io.Writer) bool {
	if v := os.Getenv(testModeEnv); v != "" {
		return v == "1" || v == "true"
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// KindFor inspects w and the requested output file (if any) and picks
// the right fixed Kind.
func KindFor(w io.Writer, isStderr, isExplicitFile bool) Kind {
	switch {
	case isExplicitFile:
		return File
	case isStderr:
		return Stderr
	case IsTerminal(w):
		return StdoutTTY
	default:
		return StdoutRedirect
	}
}
