// Package coro is a user-space cooperative fiber runtime for network I/O
// servers. It multiplexes many logical threads of execution ("fibers")
// onto a single scheduler goroutine: each fiber writes straight-line
// blocking-style code (accept, recv, send, Sleep) while the scheduler
// transparently turns every blocking point into a non-blocking syscall
// registered with a readiness-event poller.
//
// Scheduling is strictly cooperative and single-threaded: at most one
// fiber runs at a time, fibers are never preempted, and the runnable
// queue is strict FIFO. Parallelism, where wanted, is obtained by running
// multiple independent schedulers in separate processes (see the fanout
// package), each with its own queues, poller and fds.
package coro
