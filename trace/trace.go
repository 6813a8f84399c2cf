// Package trace implements the gc_verbose tracer spec.md §6 names but
// leaves unspecified: a small structured emitter that writes one line per
// gc.Event to an io.Writer, colorizing phase/event text when the writer is
// a real terminal.
package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/MaimaityMaitity/mcgc/gc"
)

// ansi color codes used to tag event kinds, matching the teacher's own
// terse approach to diagnostic output (diagnostics.go prints plain text;
// this adds color only when it's safe to).
const (
	colorReset  = "\x1b[0m"
	colorPhase  = "\x1b[1;36m" // bold cyan
	colorForward = "\x1b[33m" // yellow
	colorSweep  = "\x1b[32m"  // green
	colorOverflow = "\x1b[1;31m" // bold red
)

// Writer is a gc.Tracer that formats every event onto an underlying
// io.Writer, one line each.
type Writer struct {
	w      io.Writer
	color  bool
	cycle  int
}

// NewStdout returns a Writer over os.Stdout, wrapped with go-colorable so
// ANSI sequences render correctly on every platform (including legacy
// Windows consoles), and colorized only when os.Stdout is actually a
// terminal per go-isatty.
func NewStdout() *Writer {
	out := colorable.NewColorableStdout()
	return New(out, isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// New builds a Writer over an arbitrary writer, with color forced on or off
// by the caller (tests and non-terminal sinks pass false).
func New(w io.Writer, color bool) *Writer {
	return &Writer{w: w, color: color}
}

// Trace implements gc.Tracer.
func (t *Writer) Trace(e gc.Event) {
	if e.Kind == gc.EventPhase && e.Phase == "prepare" {
		t.cycle++
	}
	prefix := fmt.Sprintf("gc[%d]", t.cycle)
	switch e.Kind {
	case gc.EventPhase:
		t.line(colorPhase, "%s %-24s %s", prefix, e.Phase, e.Detail)
	case gc.EventOverflow:
		t.line(colorOverflow, "%s overflow-rescan %s", prefix, e.Detail)
	case gc.EventSweep:
		t.line(colorSweep, "%s sweep   %-6s %s", prefix, e.Space, e.Detail)
	default:
		t.line(colorForward, "%s %-8s %-6s %s", prefix, kindName(e.Kind), e.Space, e.Detail)
	}
}

func (t *Writer) line(color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if t.color {
		fmt.Fprintln(t.w, color+msg+colorReset)
		return
	}
	fmt.Fprintln(t.w, msg)
}

func kindName(k gc.EventKind) string {
	switch k {
	case gc.EventForward:
		return "forward"
	case gc.EventRelocate:
		return "relocate"
	case gc.EventUpdate:
		return "update"
	default:
		return "event"
	}
}
