package coro

import (
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// tcpListenerFD binds a non-blocking TCP listening socket directly via
// unix syscalls (rather than net.Listen) so it can be driven through the
// Scheduler's Accept primitive, the way fanout's newListenerFD does.
func tcpListenerFD(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return fd, sa.(*unix.SockaddrInet4).Port
}

// TestEchoRoundTrip pins spec §8 scenario 1: a single client connects,
// sends a message, and receives the identical bytes back, grounded on
// the teacher's aio_test.go TestEcho.
func TestEchoRoundTrip(t *testing.T) {
	s, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Fini()

	listenFd, port := tcpListenerFD(t)

	if _, err := s.CreateThread(WorkFunc(func(sc *Scheduler) int {
		connFd, err := sc.Accept(listenFd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return -1
		}
		defer unix.Close(connFd)
		buf := make([]byte, 128)
		n, err := sc.Recv(connFd, buf)
		if err != nil {
			t.Errorf("Recv: %v", err)
			return -1
		}
		if _, err := sc.Send(connFd, buf[:n], 0); err != nil {
			t.Errorf("Send: %v", err)
			return -1
		}
		return 0
	})); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Schedule() }()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := []byte("hello world")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	rx := make([]byte, len(msg))
	n, err := conn.Read(rx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(rx[:n]) != string(msg) {
		t.Fatalf("echoed %q, want %q", rx[:n], msg)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler never finished")
	}
}
