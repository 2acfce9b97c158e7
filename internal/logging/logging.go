// Package logging provides the tiered ops/diag/trace logger bundle shared
// by every exported subsystem, mirroring the three-stream split used
// elsewhere in this codebase (the lidar packages' opsLogger/diagLogger/
// traceLogger convention) but passed explicitly to constructors instead of
// configured through package-level globals, since a single process here
// hosts more than one subsystem that each needs its own independently
// silenceable streams.
package logging

import (
	"io"
	"log"
)

// Loggers bundles the three logging streams a subsystem writes to: Ops for
// user-facing warnings (dropped packets, invalidated filters, planner
// fallbacks engaged), Diag for per-tick summaries, and Trace for
// per-detection/per-sample verbosity. All three fields are always non-nil;
// construct through New or Discard rather than the zero value.
type Loggers struct {
	Ops   *log.Logger
	Diag  *log.Logger
	Trace *log.Logger
}

// New builds a Loggers bundle writing to ops, diag and trace respectively,
// each prefixed with prefix. A nil writer discards that stream.
func New(prefix string, ops, diag, trace io.Writer) *Loggers {
	return &Loggers{
		Ops:   newLogger(prefix, ops),
		Diag:  newLogger(prefix, diag),
		Trace: newLogger(prefix, trace),
	}
}

// Discard returns a Loggers bundle with every stream sent to io.Discard.
func Discard() *Loggers {
	return New("", io.Discard, io.Discard, io.Discard)
}

// OrDiscard returns l if non-nil, otherwise Discard(); subsystem
// constructors call this so a nil *Loggers argument is always safe to use.
func OrDiscard(l *Loggers) *Loggers {
	if l != nil {
		return l
	}
	return Discard()
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		w = io.Discard
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}
