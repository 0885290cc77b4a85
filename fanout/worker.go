package fanout

import (
	"time"

	coro "github.com/tinyco-go/tinyco"
	"github.com/tinyco-go/tinyco/internal/filelock"
)

// acceptLoopWork is the fiber body every process in the pool runs: race
// for the advisory lock, accept one connection while holding it, then
// release immediately (spec §4.5 step 4's "release immediately to
// preserve forward progress" resolution) and hand the connection off to
// a freshly created fiber.
type acceptLoopWork struct {
	listenFd int
	lock     *filelock.Lock
	factory  WorkFactory
	backoff  time.Duration
}

// Run implements coro.Work. It loops forever, cooperatively yielding on
// every lock contention, accept wait and backoff sleep -- exactly the
// single-active-fiber discipline the rest of the scheduler relies on.
func (w *acceptLoopWork) Run(s *coro.Scheduler) int {
	defer w.lock.Close()

	for {
		acquired, err := w.lock.TryLock()
		if err != nil {
			s.Sleep(w.backoff)
			continue
		}
		if !acquired {
			s.Sleep(w.backoff)
			continue
		}

		fd, err := s.Accept(w.listenFd)
		_ = w.lock.Unlock()
		if err != nil {
			continue
		}

		if _, err := s.CreateThread(w.factory(fd)); err != nil {
			return -1
		}
	}
}
