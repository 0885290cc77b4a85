// Package corolog is the structured-logging ambient layer for the coro
// runtime. The teacher (gaio) and its sibling do no logging at all; the
// pack's nearest convention for a library in this exact domain (async
// I/O / event loops) is github.com/joeycumines/logiface paired with its
// zerolog-style backend github.com/joeycumines/stumpy (both used by
// joeycumines-go-utilpkg's eventloop, grpc-proxy and sql/log packages),
// so that is what this package wires in.
package corolog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logiface logger instantiated over the stumpy JSON event
// type. It is the type coro.WithLogger expects.
type Logger = logiface.Logger[*stumpy.Event]

// New constructs a Logger writing JSON lines to w at the given level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithLevel(level),
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
	)
}

// NewStderr constructs a Logger writing to os.Stderr at LevelInformational,
// the usual default for a server's lifecycle/diagnostic events.
func NewStderr() *Logger {
	return New(os.Stderr, logiface.LevelInformational)
}

// Disabled constructs a Logger that discards everything -- the coro
// package's default, matching the teacher's silence unless a caller
// opts in.
func Disabled() *Logger {
	return stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))
}
