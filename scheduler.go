package coro

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/tinyco-go/tinyco/internal/poller"
)

// ioKey identifies a single (fd, direction) pair in the I/O wait index.
// Keys are unique: spec §4.3's single-waiter invariant is enforced by
// refusing a second insert under the same key.
type ioKey struct {
	fd  int
	dir direction
}

// Scheduler is the main loop that owns every fiber, the I/O wait index,
// the sleep/timeout heap and the event-loop adapter for one process. It
// is the Go-native rendering of the original Frame singleton, made an
// explicit value per Design Notes §9 ("explicit Scheduler value with
// Init/Fini") rather than process-wide global state, so a process may
// run more than one (e.g. in tests), though the fanout package runs
// exactly one per process.
type Scheduler struct {
	cfg config
	pfd poller.Poller

	runnable runnableQueue
	free     freeQueue
	sleeping timeoutHeap

	ioWait map[ioKey]*Fiber
	fibers map[int64]*Fiber
	nextID int64

	running           *Fiber
	lastLoopTimestamp time.Time

	closed bool
}

// Init creates the event-loop adapter and empty queues, and returns a
// ready-to-use Scheduler. Mirrors the original Frame::Init / the
// teacher's NewWatcherSize constructor.
func Init(opts ...Option) (*Scheduler, error) {
	cfg := newConfig(opts...)

	pfd, err := poller.Open(cfg.maxEvents)
	if err != nil {
		return nil, fmt.Errorf("coro: open poller: %w", err)
	}

	s := &Scheduler{
		cfg:               cfg,
		pfd:               pfd,
		ioWait:            make(map[ioKey]*Fiber),
		fibers:            make(map[int64]*Fiber),
		lastLoopTimestamp: time.Now(),
	}
	return s, nil
}

// Fini drains the queues and releases the event-loop adapter. Any fibers
// still alive are abandoned (their goroutines remain parked forever,
// which is a caller error -- Schedule should normally run until all work
// completes before Fini is called).
func (s *Scheduler) Fini() error {
	if s.closed {
		return ErrSchedulerClosed
	}
	s.closed = true
	s.free.drain()
	return s.pfd.Close()
}

// CreateThread creates a new fiber to run w and enqueues it as runnable.
// Equivalent to the original Frame::CreateThread.
func (s *Scheduler) CreateThread(w Work) (*Fiber, error) {
	return s.createNamedThread("", w)
}

// CreateNamedThread is CreateThread with a diagnostic name, surfaced in
// logging.
func (s *Scheduler) CreateNamedThread(name string, w Work) (*Fiber, error) {
	return s.createNamedThread(name, w)
}

func (s *Scheduler) createNamedThread(name string, w Work) (*Fiber, error) {
	if s.closed {
		return nil, ErrSchedulerClosed
	}
	s.nextID++
	f := newFiber(s.nextID, name, w)
	s.fibers[f.id] = f
	s.runnable.pushBack(f)
	s.spawnGoroutine(f)

	s.cfg.logger.Debug().Int64(`fiber_id`, f.id).Str(`name`, name).Log(`fiber created`)
	return f, nil
}

// spawnGoroutine launches the fiber's goroutine, which immediately parks
// on resumeCh until the scheduler first enters it. This goroutine IS the
// fiber's stack, in the Go-native mapping documented in SPEC_FULL.md §2.
func (s *Scheduler) spawnGoroutine(f *Fiber) {
	go func() {
		<-f.resumeCh
		f.exitCode = s.runWork(f)
		f.state = FiberDone
		f.doneCh <- struct{}{}
	}()
}

func (s *Scheduler) runWork(f *Fiber) (code int) {
	defer func() {
		if r := recover(); r != nil {
			f.failure = fmt.Errorf("coro: fiber %d panicked: %v", f.id, r)
			code = -1
		}
	}()
	return f.work.Run(s)
}

// enter hands the baton to f and blocks until f either parks (yields) or
// finishes. Callable only from the scheduler's own loop -- the "main
// fiber" of spec §4.1.
func (s *Scheduler) enter(f *Fiber) {
	if s.running != nil {
		panic(ErrNotRunningFiber)
	}
	s.running = f
	f.state = FiberRunning
	f.resumeCh <- struct{}{}
	select {
	case <-f.parkedCh:
	case <-f.doneCh:
	}
	s.running = nil
}

// yield parks the calling fiber with the given WaitSpec and blocks until
// the scheduler resumes it. Callable only from within a fiber's own
// goroutine -- never from the scheduler loop itself.
func (s *Scheduler) yield(spec WaitSpec) WaitSpec {
	f := s.running
	if f == nil {
		panic(ErrNotRunningFiber)
	}
	f.wait = spec
	f.parkedCh <- struct{}{}
	<-f.resumeCh
	return f.wait
}

// Schedule runs the scheduler main loop (spec §4.2) until no fibers
// remain runnable, sleeping, or I/O-waiting, or until Fini is called.
func (s *Scheduler) Schedule() error {
	for {
		s.recycle()

		if s.idle() {
			return nil
		}

		timeout := s.computeTimeout()
		events, err := s.pfd.Wait(timeout)
		if err != nil {
			return fmt.Errorf("coro: poll: %w", err)
		}
		s.handleEvents(events)
		s.drainSleep()
		s.lastLoopTimestamp = time.Now()

		if f := s.runnable.popFront(); f != nil {
			s.runOne(f)
		}

		if s.closed {
			return nil
		}
	}
}

// idle reports whether the scheduler has no more work to do: the
// termination condition of spec §4.2 ("all queues are empty and no
// outstanding I/O registrations remain").
func (s *Scheduler) idle() bool {
	return s.runnable.len() == 0 && len(s.ioWait) == 0 && len(s.sleeping) == 0 && s.free.l.Len() == 0 && len(s.fibers) == 0
}

// recycle destroys every fiber in the free queue (step 1).
func (s *Scheduler) recycle() {
	for _, f := range s.free.drain() {
		delete(s.fibers, f.id)
		s.cfg.logger.Debug().Int64(`fiber_id`, f.id).Int(`exit_code`, f.exitCode).Log(`fiber recycled`)
	}
}

// computeTimeout implements step 2: 0 if runnable, else time until the
// earliest sleeping deadline, else the configured fallback.
func (s *Scheduler) computeTimeout() time.Duration {
	if s.runnable.len() > 0 {
		return 0
	}
	if len(s.sleeping) > 0 {
		d := time.Until(s.sleeping[0].wait.deadline)
		if d < 0 {
			return 0
		}
		return d
	}
	return s.cfg.fallbackTimeout
}

// handleEvents implements step 3: for each readiness event, look up the
// waiting fiber(s) by fd and move them to runnable.
func (s *Scheduler) handleEvents(events []poller.Event) {
	for _, e := range events {
		if e.Readable || e.Err {
			s.wakeIO(e.Fd, dirRead)
		}
		if e.Writable || e.Err {
			s.wakeIO(e.Fd, dirWrite)
		}
	}
}

func (s *Scheduler) wakeIO(fd int, dir direction) {
	key := ioKey{fd: fd, dir: dir}
	f, ok := s.ioWait[key]
	if !ok {
		return
	}
	delete(s.ioWait, key)
	if f.heapIndex >= 0 {
		heap.Remove(&s.sleeping, f.heapIndex)
	}
	if err := s.pfd.Unwatch(fd, pollerDir(dir)); err != nil {
		s.cfg.logger.Debug().Err(err).Int(`fd`, fd).Str(`dir`, dir.String()).Log(`unwatch failed`)
	}
	f.state = FiberRunnable
	s.runnable.pushBack(f)
}

// pollerDir translates the core package's direction into the poller
// package's equivalent. The poller tracks read/write interest on a fd
// independently (spec §4.4), so every Watch/Unwatch call names exactly
// the direction it concerns rather than arming or disarming both at
// once -- a fiber waiting to read must never be woken, or spun, by
// writability on the very same fd.
func pollerDir(dir direction) poller.Direction {
	if dir == dirWrite {
		return poller.Write
	}
	return poller.Read
}

// drainSleep implements step 4: move every fiber whose deadline has
// elapsed to runnable, marking its WaitSpec timed out.
func (s *Scheduler) drainSleep() {
	now := time.Now()
	for len(s.sleeping) > 0 {
		f := s.sleeping[0]
		if f.wait.deadline.After(now) {
			break
		}
		heap.Pop(&s.sleeping)
		if f.wait.kind == waitIO {
			delete(s.ioWait, ioKey{fd: f.wait.fd, dir: f.wait.dir})
			if err := s.pfd.Unwatch(f.wait.fd, pollerDir(f.wait.dir)); err != nil {
				s.cfg.logger.Debug().Err(err).Int(`fd`, f.wait.fd).Str(`dir`, f.wait.dir.String()).Log(`unwatch failed`)
			}
		}
		f.wait.timedOut = true
		f.state = FiberRunnable
		s.runnable.pushBack(f)
	}
}

// runOne implements step 6: run the head of the runnable queue until it
// yields or finishes, then file it into the appropriate collection.
func (s *Scheduler) runOne(f *Fiber) {
	s.enter(f)

	if f.state == FiberDone {
		s.free.pushBack(f)
		return
	}

	switch f.wait.kind {
	case waitIO:
		key := ioKey{fd: f.wait.fd, dir: f.wait.dir}
		s.ioWait[key] = f
		f.state = FiberIoWait
		if !f.wait.deadline.IsZero() {
			heap.Push(&s.sleeping, f)
		}
	case waitSleep:
		f.state = FiberSleeping
		heap.Push(&s.sleeping, f)
	default:
		// Fiber yielded with no WaitSpec (shouldn't normally happen);
		// treat as immediately runnable again to avoid losing it.
		f.state = FiberRunnable
		s.runnable.pushBack(f)
	}
}

// registerIOWait enforces the single-waiter invariant for (fd,dir) and
// arms the poller for it; the (fd,dir) -> fiber entry itself is inserted
// into the I/O wait index by runOne once the calling fiber has parked.
// Returns ErrInvariantViolation if a fiber already waits on the same key.
func (s *Scheduler) registerIOWait(fd int, dir direction) error {
	key := ioKey{fd: fd, dir: dir}
	if existing, ok := s.ioWait[key]; ok {
		s.cfg.logger.Err().Int(`fd`, fd).Str(`dir`, dir.String()).Int64(`holder_fiber_id`, existing.id).Log(`invariant violation: fd already awaited`)
		return ErrInvariantViolation
	}
	if err := s.pfd.Watch(fd, pollerDir(dir)); err != nil {
		return err
	}
	return nil
}
