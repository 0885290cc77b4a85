// Command tinyco-httpd runs the httpframe echo server behind the
// Listener Fan-Out, the HTTP-shaped counterpart to tinyco-echo.
package main

import (
	"flag"
	"log"

	coro "github.com/tinyco-go/tinyco"
	"github.com/tinyco-go/tinyco/corolog"
	"github.com/tinyco-go/tinyco/fanout"
	"github.com/tinyco-go/tinyco/httpframe"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "address to listen on")
	poolSize := flag.Int("pool-size", 4, "number of processes racing for the accept lock")
	flag.Parse()

	sched, err := coro.Init(coro.WithLogger(corolog.NewStderr()))
	if err != nil {
		log.Fatalf("coro.Init: %v", err)
	}
	defer sched.Fini()

	err = fanout.ListenAndAccept(sched, "tcp", *addr, func(fd int) coro.Work {
		return httpframe.EchoHTTPWork{Fd: fd}
	}, fanout.WithPoolSize(*poolSize))
	if err != nil {
		log.Fatalf("fanout.ListenAndAccept: %v", err)
	}

	if err := sched.Schedule(); err != nil {
		log.Fatalf("sched.Schedule: %v", err)
	}
}
