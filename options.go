package coro

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

const (
	defaultSwapBufferSize  = 64 * 1024
	defaultMaxEvents       = 1024
	defaultFallbackTimeout = time.Second
	// defaultStackHint documents the teacher spec's "stack >= 64KiB"
	// recommendation. Go goroutine stacks are runtime-managed (they start
	// at 2-8KiB and grow on demand), so this value is not allocated -- it
	// exists purely as a documented design target, see DESIGN.md.
	defaultStackHint = 64 * 1024
)

// config holds the scheduler's tunables, assembled from Option values.
type config struct {
	swapBufferSize  int
	maxEvents       int
	fallbackTimeout time.Duration
	stackHint       int
	logger          *logiface.Logger[*stumpy.Event]
}

// Option configures a Scheduler at construction time.
type Option func(*config)

func newConfig(opts ...Option) config {
	c := config{
		swapBufferSize:  defaultSwapBufferSize,
		maxEvents:       defaultMaxEvents,
		fallbackTimeout: defaultFallbackTimeout,
		stackHint:       defaultStackHint,
		logger:          stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled)),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithSwapBufferSize sets the initial reply buffer size TcpSendAndRecv and
// UdpSendAndRecv use when called with a non-positive buffer size. Mirrors
// the teacher's NewWatcherSize(bufsize).
func WithSwapBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.swapBufferSize = n
		}
	}
}

// WithMaxEvents bounds how many readiness events the poller reports per
// Wait() call.
func WithMaxEvents(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxEvents = n
		}
	}
}

// WithFallbackPollTimeout sets the poll duration used when the runnable
// queue is empty and no fiber is sleeping -- the "implementation-defined
// maximum" of spec §4.2 step 2.
func WithFallbackPollTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.fallbackTimeout = d
		}
	}
}

// WithStackHint documents the intended fiber stack size. It is informational
// only (see defaultStackHint) and exists so callers and future pooling code
// have a single place to read/override the budget.
func WithStackHint(bytes int) Option {
	return func(c *config) {
		if bytes > 0 {
			c.stackHint = bytes
		}
	}
}

// WithLogger attaches a structured logger for fiber lifecycle and
// invariant-violation diagnostics. The default is a disabled logger, so
// the scheduler is silent unless a caller opts in.
func WithLogger(l *logiface.Logger[*stumpy.Event]) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
