package fanout

import (
	"io"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	coro "github.com/tinyco-go/tinyco"
	"github.com/tinyco-go/tinyco/internal/filelock"
)

// echoWork reads one chunk from fd and writes it straight back,
// grounded on the teacher's aio_test.go echoServer helper.
type echoWork struct{ fd int }

func (w echoWork) Run(s *coro.Scheduler) int {
	defer unix.Close(w.fd)
	buf := make([]byte, 256)
	n, err := s.Recv(w.fd, buf)
	if err != nil || n == 0 {
		return 0
	}
	if _, err := s.Send(w.fd, buf[:n], 0); err != nil {
		return -1
	}
	return 0
}

// TestSinglePoolAcceptDispatch drives the accept-lock loop of a
// single-process pool directly (acceptLoopWork on a raw listener, without
// ListenAndAccept): no child processes are spawned, and this process
// alone races (and always wins) the advisory lock, in the spirit of the
// scenario-5 seed test in spec.md §8.
func TestSinglePoolAcceptDispatch(t *testing.T) {
	// The acceptor fiber's loop never returns, so the scheduler keeps
	// Schedule()-ing in the background past this test's lifetime; Fini
	// is deliberately not called here to avoid racing pfd.Close against
	// the still-running poll loop.
	sched, err := coro.Init()
	require.NoError(t, err)

	listenFd, err := newListenerFD("tcp", "127.0.0.1:0", defaultBacklog)
	require.NoError(t, err)

	sa, err := unix.Getsockname(listenFd)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	lockPath := lockFilePath(defaultLockPrefix, os.Getpid())
	t.Cleanup(func() { os.Remove(lockPath) })
	lock, err := filelock.Open(lockPath)
	require.NoError(t, err)

	_, err = sched.CreateNamedThread("fanout-acceptor", &acceptLoopWork{
		listenFd: listenFd,
		lock:     lock,
		factory:  func(fd int) coro.Work { return echoWork{fd: fd} },
		backoff:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Schedule() }()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

// TestLockFilePath pins the advisory lock's artifact path to the
// original implementation's /tmp/tinyco_lf_<pid> convention.
func TestLockFilePath(t *testing.T) {
	require.Equal(t, "/tmp/tinyco_lf_1234", lockFilePath(defaultLockPrefix, 1234))
}

// TestNewListenerFDBindsEphemeralPort exercises the raw-socket bind
// path directly, independent of process fan-out.
func TestNewListenerFDBindsEphemeralPort(t *testing.T) {
	fd, err := newListenerFD("tcp", "127.0.0.1:0", defaultBacklog)
	require.NoError(t, err)
	defer unix.Close(fd)

	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	sin, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.NotZero(t, sin.Port)

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(sin.Port)), time.Second)
	require.NoError(t, err)
	_ = conn.Close()
}
