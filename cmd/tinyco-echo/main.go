// Command tinyco-echo runs a fan-out-balanced TCP echo server, the
// Go-native rendering of the teacher's aio_test.go echoServer turned
// into a standalone binary and wired through the Listener Fan-Out.
package main

import (
	"flag"
	"log"

	"golang.org/x/sys/unix"

	coro "github.com/tinyco-go/tinyco"
	"github.com/tinyco-go/tinyco/corolog"
	"github.com/tinyco-go/tinyco/fanout"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9527", "address to listen on")
	poolSize := flag.Int("pool-size", 4, "number of processes racing for the accept lock")
	flag.Parse()

	sched, err := coro.Init(coro.WithLogger(corolog.NewStderr()))
	if err != nil {
		log.Fatalf("coro.Init: %v", err)
	}
	defer sched.Fini()

	err = fanout.ListenAndAccept(sched, "tcp", *addr, echoWorkFactory, fanout.WithPoolSize(*poolSize))
	if err != nil {
		log.Fatalf("fanout.ListenAndAccept: %v", err)
	}

	if err := sched.Schedule(); err != nil {
		log.Fatalf("sched.Schedule: %v", err)
	}
}

func echoWorkFactory(fd int) coro.Work {
	return coro.WorkFunc(func(s *coro.Scheduler) int {
		defer unix.Close(fd)
		buf := make([]byte, 4096)
		for {
			n, err := s.Recv(fd, buf)
			if err != nil || n == 0 {
				return 0
			}
			if _, err := s.Send(fd, buf[:n], 0); err != nil {
				return -1
			}
		}
	})
}
