package coro

import (
	"time"

	"golang.org/x/sys/unix"
)

// IsComplete decides, given the bytes received so far for one logical
// request/response, whether the frame is complete. It is the Go-native
// rendering of the original's IsPkgComplete(const char*, size_t) callback
// (frame.h), used by TcpSendAndRecv to know when to stop reading.
//
// CheckPkg returns the length of the complete message if buf begins
// with one (any bytes after it are ignored), 0 if buf is a valid but incomplete
// prefix, and a negative number if buf can never become valid (a
// malformed frame, spec §6).
type IsComplete interface {
	CheckPkg(buf []byte) int
}

// IsCompleteFunc adapts a plain function to IsComplete.
type IsCompleteFunc func(buf []byte) int

// CheckPkg implements IsComplete.
func (f IsCompleteFunc) CheckPkg(buf []byte) int { return f(buf) }

// waitFD registers the running fiber on fd/dir and yields until it is
// either woken by a readiness event or its deadline (if any) elapses.
// Mirrors the teacher's "submit, then wait on completion channel"
// pattern (watcher.go), collapsed into the synchronous baton protocol.
func (s *Scheduler) waitFD(fd int, dir direction, deadline time.Time) error {
	if err := s.registerIOWait(fd, dir); err != nil {
		return err
	}
	// Both wake paths (scheduler.wakeIO on readiness, scheduler.drainSleep
	// on timeout) already remove this (fd, dir) entry and unwatch it on
	// the poller before resuming this fiber, so there is nothing left
	// to release here -- just report what happened.
	spec := s.yield(WaitSpec{kind: waitIO, fd: fd, dir: dir, deadline: deadline})
	if spec.timedOut {
		return ErrTimeout
	}
	return nil
}

// Accept blocks the calling fiber until sockfd (a non-blocking listening
// socket) has a pending connection, then returns the new connection's fd.
// Equivalent to the original Frame::accept.
func (s *Scheduler) Accept(sockfd int) (int, error) {
	return s.AcceptDeadline(sockfd, time.Time{})
}

// AcceptDeadline is Accept with an optional deadline (zero means none).
func (s *Scheduler) AcceptDeadline(sockfd int, deadline time.Time) (int, error) {
	for {
		nfd, _, err := unix.Accept(sockfd)
		switch err {
		case nil:
			if err := unix.SetNonblock(nfd, true); err != nil {
				_ = unix.Close(nfd)
				return 0, err
			}
			return nfd, nil
		case unix.EAGAIN:
			if err := s.waitFD(sockfd, dirRead, deadline); err != nil {
				return 0, err
			}
		case unix.EINTR:
			continue
		default:
			return 0, err
		}
	}
}

// Connect initiates a non-blocking connect on sockfd and blocks the
// calling fiber until it completes (successfully or not). Equivalent to
// the original Frame::connect.
func (s *Scheduler) Connect(sockfd int, sa unix.Sockaddr) error {
	return s.ConnectDeadline(sockfd, sa, time.Time{})
}

// ConnectDeadline is Connect with an optional deadline.
func (s *Scheduler) ConnectDeadline(sockfd int, sa unix.Sockaddr, deadline time.Time) error {
	err := unix.Connect(sockfd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return err
	}
	if err := s.waitFD(sockfd, dirWrite, deadline); err != nil {
		return err
	}
	soErr, err := unix.GetsockoptInt(sockfd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Send blocks the calling fiber until at least one byte of buf has been
// written to sockfd, retrying internally on EAGAIN/EINTR. Equivalent to
// the original Frame::send.
func (s *Scheduler) Send(sockfd int, buf []byte, flags int) (int, error) {
	return s.SendDeadline(sockfd, buf, flags, time.Time{})
}

// SendDeadline is Send with an optional deadline.
func (s *Scheduler) SendDeadline(sockfd int, buf []byte, flags int, deadline time.Time) (int, error) {
	if len(buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	for {
		n, err := unix.Write(sockfd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EAGAIN:
			if err := s.waitFD(sockfd, dirWrite, deadline); err != nil {
				return 0, err
			}
		case unix.EINTR:
			continue
		default:
			return 0, err
		}
	}
}

// Recv blocks the calling fiber until at least one byte is available on
// sockfd (or the peer has closed), retrying internally on EAGAIN/EINTR.
// A zero-length, nil-error return means the peer closed the connection.
// Equivalent to the original Frame::recv.
func (s *Scheduler) Recv(sockfd int, buf []byte) (int, error) {
	return s.RecvDeadline(sockfd, buf, time.Time{})
}

// RecvDeadline is Recv with an optional deadline.
func (s *Scheduler) RecvDeadline(sockfd int, buf []byte, deadline time.Time) (int, error) {
	if len(buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	for {
		n, err := unix.Read(sockfd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EAGAIN:
			if err := s.waitFD(sockfd, dirRead, deadline); err != nil {
				return 0, err
			}
		case unix.EINTR:
			continue
		default:
			return 0, err
		}
	}
}

// SendTo blocks the calling fiber until buf has been sent to addr over
// the (typically datagram) socket sockfd.
func (s *Scheduler) SendTo(sockfd int, buf []byte, flags int, addr unix.Sockaddr) error {
	return s.SendToDeadline(sockfd, buf, flags, addr, time.Time{})
}

// SendToDeadline is SendTo with an optional deadline.
func (s *Scheduler) SendToDeadline(sockfd int, buf []byte, flags int, addr unix.Sockaddr, deadline time.Time) error {
	for {
		err := unix.Sendto(sockfd, buf, flags, addr)
		switch err {
		case nil:
			return nil
		case unix.EAGAIN:
			if err := s.waitFD(sockfd, dirWrite, deadline); err != nil {
				return err
			}
		case unix.EINTR:
			continue
		default:
			return err
		}
	}
}

// RecvFrom blocks the calling fiber until a datagram is available on
// sockfd, returning its length and source address.
func (s *Scheduler) RecvFrom(sockfd int, buf []byte) (int, unix.Sockaddr, error) {
	return s.RecvFromDeadline(sockfd, buf, time.Time{})
}

// RecvFromDeadline is RecvFrom with an optional deadline.
func (s *Scheduler) RecvFromDeadline(sockfd int, buf []byte, deadline time.Time) (int, unix.Sockaddr, error) {
	for {
		n, from, err := unix.Recvfrom(sockfd, buf, 0)
		switch err {
		case nil:
			return n, from, nil
		case unix.EAGAIN:
			if err := s.waitFD(sockfd, dirRead, deadline); err != nil {
				return 0, nil, err
			}
		case unix.EINTR:
			continue
		default:
			return 0, nil, err
		}
	}
}

// Sleep suspends the calling fiber for at least d, measured from the
// scheduler's last loop timestamp rather than a fresh call to time.Now
// (spec §4.3: sleep deadlines are computed relative to the scheduler's
// notion of "now" at the time of the request, avoiding drift across a
// single loop iteration that serves many fibers).
func (s *Scheduler) Sleep(d time.Duration) {
	if d <= 0 {
		s.yield(WaitSpec{kind: waitSleep, deadline: s.lastLoopTimestamp})
		return
	}
	s.yield(WaitSpec{kind: waitSleep, deadline: s.lastLoopTimestamp.Add(d)})
}

// growRecvBuffer doubles buf's capacity, preserving its first n bytes.
// Grounded on the original http_server.cc pattern of doubling the
// request buffer whenever a recv call fills it exactly.
func growRecvBuffer(buf []byte, n int) []byte {
	grown := make([]byte, len(buf)*2)
	copy(grown, buf[:n])
	return grown
}

// TcpSendAndRecv sends req over sockfd, then reads a reply until
// complete.CheckPkg reports completion, growing its internal buffer as
// needed. It is the composite primitive the original's Frame exposes for
// one-shot request/response exchanges over a connected TCP socket.
func (s *Scheduler) TcpSendAndRecv(sockfd int, req []byte, complete IsComplete, initialBufSize int) ([]byte, error) {
	if len(req) > 0 {
		sent := 0
		for sent < len(req) {
			n, err := s.Send(sockfd, req[sent:], 0)
			if err != nil {
				return nil, err
			}
			sent += n
		}
	}

	if initialBufSize <= 0 {
		initialBufSize = s.cfg.swapBufferSize
	}
	buf := make([]byte, initialBufSize)
	total := 0
	for {
		if total == len(buf) {
			buf = growRecvBuffer(buf, total)
		}
		n, err := s.Recv(sockfd, buf[total:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrPeerClosed
		}
		total += n

		switch got := complete.CheckPkg(buf[:total]); {
		case got < 0:
			return nil, ErrMalformed
		case got > 0:
			return buf[:got], nil
		}
	}
}

// UdpSendAndRecv creates a non-blocking datagram socket scoped to this
// call, sends req to addr, waits for exactly one reply datagram, and
// closes the socket on every exit path. Equivalent to the original
// Frame::udp_send_and_recv.
func (s *Scheduler) UdpSendAndRecv(addr unix.Sockaddr, req []byte, replyBufSize int) ([]byte, error) {
	domain := unix.AF_INET
	if _, ok := addr.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}

	if err := s.SendTo(fd, req, 0, addr); err != nil {
		return nil, err
	}

	if replyBufSize <= 0 {
		replyBufSize = s.cfg.swapBufferSize
	}
	buf := make([]byte, replyBufSize)
	n, _, err := s.RecvFrom(fd, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
