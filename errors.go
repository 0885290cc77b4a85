package coro

import "errors"

// Sentinel errors returned by the scheduler and its I/O primitives.
//
// These follow the teacher library's convention of a small set of
// exported errors.New sentinels rather than a custom error type
// hierarchy: callers compare with errors.Is.
var (
	// ErrSchedulerClosed means Fini has already torn down the scheduler.
	ErrSchedulerClosed = errors.New("coro: scheduler closed")

	// ErrEmptyBuffer means a Send or Recv was called with a zero-length buffer.
	ErrEmptyBuffer = errors.New("coro: empty buffer")

	// ErrTimeout means an I/O wait's deadline elapsed before readiness.
	ErrTimeout = errors.New("coro: operation exceeded deadline")

	// ErrPeerClosed means recv observed a zero-length read (orderly close).
	ErrPeerClosed = errors.New("coro: connection closed by peer")

	// ErrMalformed means an IsComplete predicate rejected the accumulated buffer.
	ErrMalformed = errors.New("coro: malformed frame")

	// ErrInvariantViolation means two fibers attempted to wait on the same
	// (fd, direction) pair at once. Fatal to the offending fiber only; the
	// scheduler itself keeps running.
	ErrInvariantViolation = errors.New("coro: invariant violation: fd already awaited")

	// ErrNotRunningFiber means yield() was called from the main/scheduler
	// goroutine, or enter() was called from within a fiber.
	ErrNotRunningFiber = errors.New("coro: enter/yield called from the wrong side of the baton")

	// ErrForkFailure is surfaced by the fanout package at listener setup time.
	ErrForkFailure = errors.New("coro: failed to spawn acceptor worker process")
)
