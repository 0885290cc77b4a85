package coro

import (
	"bytes"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// lineComplete is a small IsComplete that treats a trailing '\n' as the
// frame terminator -- just enough to drive TcpSendAndRecv's growth-loop
// in a test without pulling in httpframe.
type lineComplete struct{}

func (lineComplete) CheckPkg(buf []byte) int {
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// TestTcpSendAndRecvGrowsBufferAtBoundary pins spec §8's buffer-doubling
// boundary: a reply larger than TcpSendAndRecv's initial buffer forces
// at least one internal growth, and the full reply is still returned
// intact.
func TestTcpSendAndRecvGrowsBufferAtBoundary(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Fini()

	a, b := socketpair(t)

	reply := bytes.Repeat([]byte("x"), 40)
	reply = append(reply, '\n')

	got := make(chan []byte, 1)
	gotErr := make(chan error, 1)

	if _, err := s.CreateThread(WorkFunc(func(sc *Scheduler) int {
		buf, err := sc.TcpSendAndRecv(a, []byte("req\n"), lineComplete{}, 8)
		if err != nil {
			gotErr <- err
			return -1
		}
		got <- append([]byte(nil), buf...)
		return 0
	})); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if _, err := s.CreateThread(WorkFunc(func(sc *Scheduler) int {
		buf := make([]byte, 8)
		n, err := sc.Recv(b, buf)
		if err != nil || n == 0 {
			return -1
		}
		if _, err := sc.Send(b, reply, 0); err != nil {
			return -1
		}
		return 0
	})); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Schedule() }()

	select {
	case err := <-gotErr:
		t.Fatalf("TcpSendAndRecv error: %v", err)
	case buf := <-got:
		if !bytes.Equal(buf, reply) {
			t.Fatalf("reply = %q (len %d), want %q (len %d)", buf, len(buf), reply, len(reply))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for TcpSendAndRecv result")
	}

	if err := <-done; err != nil {
		t.Fatalf("Schedule: %v", err)
	}
}

// TestAcceptDeadlineTimesOut exercises AcceptDeadline's boundary: no
// pending connection before the deadline yields ErrTimeout, not a hang.
func TestAcceptDeadlineTimesOut(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Fini()

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	defer unix.Close(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	result := make(chan error, 1)
	if _, err := s.CreateThread(WorkFunc(func(sc *Scheduler) int {
		_, err := sc.AcceptDeadline(fd, time.Now().Add(30*time.Millisecond))
		result <- err
		return 0
	})); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	go s.Schedule()

	select {
	case err := <-result:
		if err != ErrTimeout {
			t.Fatalf("AcceptDeadline err = %v, want ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ErrTimeout")
	}
}
