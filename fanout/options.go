package fanout

import "time"

const (
	defaultPoolSize      = 4
	defaultLockPrefix    = "tinyco_lf_"
	defaultAcceptBackoff = 500 * time.Millisecond
	defaultBacklog       = 128
)

// cfg holds the Listener Fan-Out's tunables, resolving the Open
// Question spec §9 leaves open ("how many processes, and how is the
// pool size chosen") as an explicit WithPoolSize, defaulting to 4 to
// match the original implementation's fixed pool.
type cfg struct {
	poolSize      int
	lockPrefix    string
	acceptBackoff time.Duration
	backlog       int
}

// Option configures ListenAndAccept.
type Option func(*cfg)

func newCfg(opts ...Option) cfg {
	c := cfg{
		poolSize:      defaultPoolSize,
		lockPrefix:    defaultLockPrefix,
		acceptBackoff: defaultAcceptBackoff,
		backlog:       defaultBacklog,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithPoolSize sets the total number of processes (including the
// master) that race for the advisory accept lock. n<1 is treated as 1
// (the master alone, no children spawned).
func WithPoolSize(n int) Option {
	return func(c *cfg) {
		if n < 1 {
			n = 1
		}
		c.poolSize = n
	}
}

// WithLockPathPrefix overrides the advisory lock file's prefix; the
// full path is always /tmp/<prefix><master-pid>, matching the
// original's /tmp/tinyco_lf_<pid> artifact.
func WithLockPathPrefix(prefix string) Option {
	return func(c *cfg) {
		if prefix != "" {
			c.lockPrefix = prefix
		}
	}
}

// WithAcceptBackoff sets how long a process sleeps between failed
// attempts to acquire the accept lock.
func WithAcceptBackoff(d time.Duration) Option {
	return func(c *cfg) {
		if d > 0 {
			c.acceptBackoff = d
		}
	}
}

// WithBacklog sets the listen(2) backlog used when the master binds the
// shared listening socket.
func WithBacklog(n int) Option {
	return func(c *cfg) {
		if n > 0 {
			c.backlog = n
		}
	}
}
