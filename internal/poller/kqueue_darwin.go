//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	watchRead  uint8 = 1 << iota
	watchWrite
)

// kqueuePoller implements Poller over BSD kqueue, the teacher's declared
// build-tag sibling platform set (watcher.go's
// "linux || darwin || netbsd || freebsd || openbsd || dragonfly").
//
// watched tracks which of EVFILT_READ/EVFILT_WRITE is currently
// registered for each fd, so Watch/Unwatch can arm or disarm one
// direction without disturbing the other -- kqueue already models the
// two directions as independent filters, so this is a thinner
// bookkeeping layer than epoll's single-mask-per-fd approach, but the
// same per-direction discipline applies (a fiber waiting on only one
// direction must not be woken, or spun, by the other).
type kqueuePoller struct {
	kq      int
	mu      sync.Mutex
	watched map[int]uint8
	evbuf   []unix.Kevent_t
}

func open(maxEvents int) (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	return &kqueuePoller{
		kq:      kq,
		watched: make(map[int]uint8),
		evbuf:   make([]unix.Kevent_t, maxEvents),
	}, nil
}

func dirFilter(dir Direction) int16 {
	if dir == Write {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func dirBit(dir Direction) uint8 {
	if dir == Write {
		return watchWrite
	}
	return watchRead
}

func (p *kqueuePoller) Watch(fd int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bit := dirBit(dir)
	if p.watched[fd]&bit != 0 {
		return nil
	}

	change := unix.Kevent_t{Ident: uint64(fd), Filter: dirFilter(dir), Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		return err
	}
	p.watched[fd] |= bit
	return nil
}

func (p *kqueuePoller) Unwatch(fd int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bit := dirBit(dir)
	if p.watched[fd]&bit == 0 {
		return nil
	}

	change := unix.Kevent_t{Ident: uint64(fd), Filter: dirFilter(dir), Flags: unix.EV_DELETE}
	_, _ = unix.Kevent(p.kq, []unix.Kevent_t{change}, nil, nil)
	p.watched[fd] &^= bit
	if p.watched[fd] == 0 {
		delete(p.watched, fd)
	}
	return nil
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	switch {
	case timeout == 0:
		z := unix.NsecToTimespec(0)
		ts = &z
	case timeout > 0:
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.evbuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		raw := p.evbuf[i]
		fd := int(raw.Ident)
		ev, ok := byFd[fd]
		if !ok {
			ev = &Event{Fd: fd}
			byFd[fd] = ev
			order = append(order, fd)
		}
		switch raw.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		if raw.Flags&unix.EV_ERROR != 0 {
			ev.Err = true
		}
	}

	events := make([]Event, 0, len(order))
	for _, fd := range order {
		events = append(events, *byFd[fd])
	}
	return events, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
