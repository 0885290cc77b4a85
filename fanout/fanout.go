// Package fanout implements the Listener Fan-Out component of spec §4.5:
// a small pool of processes race an advisory file lock to serialize
// accept() across the pool, so incoming connections are load-balanced
// across processes without a separate balancer.
//
// The original (frame.h's ListenAndAcceptWork<W>, reimagined here per
// Design Notes §9) calls fork() directly. Forking a running Go process
// is unsafe (only the calling goroutine survives in the child, every
// other goroutine -- including the runtime's own -- simply vanishes),
// so this package re-execs the current binary instead, passing the
// shared listening socket across the exec boundary via os/exec's
// ExtraFiles, the pattern grounded on the pack's
// other_examples/..._SocketHandoff-main.go.go.
package fanout

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"

	coro "github.com/tinyco-go/tinyco"
	"github.com/tinyco-go/tinyco/internal/filelock"
)

const (
	envWorker    = "TINYCO_FANOUT_WORKER"
	envListenFd  = "TINYCO_FANOUT_LISTEN_FD"
	envMasterPid = "TINYCO_FANOUT_MASTER_PID"
	envIndex     = "TINYCO_FANOUT_INDEX"
	envLockPfx   = "TINYCO_FANOUT_LOCK_PREFIX"

	childListenFd = 3 // first ExtraFiles entry always lands at fd 3
)

// WorkFactory produces the coro.Work that should run for a single
// accepted connection fd. Deliberately a plain function type rather
// than a generic type parameter (Design Notes §9): spec.md explicitly
// favors the capability-as-function shape here over
// ListenAndAccept[W Work].
type WorkFactory func(fd int) coro.Work

// ListenAndAccept runs the Listener Fan-Out for one logical listening
// address against sched. In the master process it binds the socket,
// spawns cfg.poolSize-1 worker processes (each re-executing the current
// binary), and joins the pool itself as worker 0. In a re-exec'd worker
// process it reconstructs the inherited listening fd. Either way it
// registers the accept-lock loop as a fiber on sched and returns --
// the caller is responsible for calling sched.Schedule() afterward, the
// same way any other coro.Work is started.
func ListenAndAccept(sched *coro.Scheduler, network, addr string, factory WorkFactory, opts ...Option) error {
	c := newCfg(opts...)

	if os.Getenv(envWorker) == "1" {
		return joinAsWorker(sched, factory, c)
	}
	return startAsMaster(sched, network, addr, factory, c)
}

func startAsMaster(sched *coro.Scheduler, network, addr string, factory WorkFactory, c cfg) error {
	listenFd, err := newListenerFD(network, addr, c.backlog)
	if err != nil {
		return fmt.Errorf("fanout: listen %s %s: %w", network, addr, err)
	}

	masterPID := os.Getpid()
	lockPath := lockFilePath(c.lockPrefix, masterPID)

	for i := 1; i < c.poolSize; i++ {
		if err := spawnWorker(listenFd, masterPID, i, c); err != nil {
			return fmt.Errorf("fanout: spawn worker %d: %w", i, ErrForkFailure(err))
		}
	}

	return registerAcceptLoop(sched, listenFd, lockPath, factory, c)
}

func joinAsWorker(sched *coro.Scheduler, factory WorkFactory, c cfg) error {
	masterPID, err := strconv.Atoi(os.Getenv(envMasterPid))
	if err != nil {
		return fmt.Errorf("fanout: malformed %s: %w", envMasterPid, err)
	}
	if prefix := os.Getenv(envLockPfx); prefix != "" {
		c.lockPrefix = prefix
	}
	lockPath := lockFilePath(c.lockPrefix, masterPID)
	return registerAcceptLoop(sched, childListenFd, lockPath, factory, c)
}

func registerAcceptLoop(sched *coro.Scheduler, listenFd int, lockPath string, factory WorkFactory, c cfg) error {
	lock, err := filelock.Open(lockPath)
	if err != nil {
		return fmt.Errorf("fanout: open lock %s: %w", lockPath, err)
	}
	work := &acceptLoopWork{
		listenFd: listenFd,
		lock:     lock,
		factory:  factory,
		backoff:  c.acceptBackoff,
	}
	_, err = sched.CreateNamedThread("fanout-acceptor", work)
	return err
}

// spawnWorker re-execs the current binary, handing it the listening fd
// via ExtraFiles (always landing at fd 3 in the child) and the
// coordinates it needs to find the shared lock file via environment
// variables.
func spawnWorker(listenFd, masterPID, index int, c cfg) error {
	// Dup first: os.NewFile takes ownership of the fd number it wraps,
	// and an *os.File left unreferenced after this function returns is
	// eligible for finalization, which closes that fd. Wrapping
	// listenFd directly would risk the finalizer closing the master's
	// own still-live listener out from under worker 0; wrapping a dup
	// means the finalizer can only ever close the dup.
	dupFd, err := unix.Dup(listenFd)
	if err != nil {
		return fmt.Errorf("fanout: dup listen fd %d: %w", listenFd, err)
	}
	f := os.NewFile(uintptr(dupFd), "tinyco-fanout-listener")

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.ExtraFiles = []*os.File{f}
	cmd.Env = append(os.Environ(),
		envWorker+"=1",
		envListenFd+"="+strconv.Itoa(childListenFd),
		envMasterPid+"="+strconv.Itoa(masterPID),
		envIndex+"="+strconv.Itoa(index),
		envLockPfx+"="+c.lockPrefix,
	)

	startErr := cmd.Start()
	// The child's ExtraFiles entry is its own dup2'd copy, taken during
	// Start; the parent's copy (f, wrapping dupFd) must be closed
	// either way to avoid leaking it.
	_ = f.Close()
	return startErr
}

// newListenerFD creates, binds and listens a non-blocking TCP socket,
// matching the original's socket()/bind()/listen() sequence in
// ListenAndAcceptWork::Run, generalized to accept "tcp"/"tcp4"/"tcp6".
func newListenerFD(network, addr string, backlog int) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return 0, err
	}

	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else if ip6 := tcpAddr.IP.To16(); ip6 != nil {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], ip6)
		return bindAndListen(domain, sa6, backlog)
	}
	return bindAndListen(domain, sa, backlog)
}

func bindAndListen(domain int, sa unix.Sockaddr, backlog int) (int, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return fd, nil
}

func lockFilePath(prefix string, masterPID int) string {
	return "/tmp/" + prefix + strconv.Itoa(masterPID)
}

// ErrForkFailure wraps a worker-spawn error with the sentinel the core
// package reserves for this failure mode (coro.ErrForkFailure), so
// callers can errors.Is against a single taxonomy regardless of which
// package raised it.
func ErrForkFailure(cause error) error {
	return fmt.Errorf("%w: %v", coro.ErrForkFailure, cause)
}
