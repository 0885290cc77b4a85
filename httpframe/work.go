package httpframe

import (
	"golang.org/x/sys/unix"

	coro "github.com/tinyco-go/tinyco"
)

// EchoHTTPWork reads one HTTP-shaped request off fd (using
// HeaderTerminatedFrame to know when it's complete) and writes a fixed
// plaintext response back, then closes fd. It exists only to exercise
// recv/send against something request/response-shaped, running its own
// grow-the-buffer recv loop rather than calling TcpSendAndRecv --
// grounded on the teacher's echoServer test helper (aio_test.go) and the
// original's HttpSrvWork::Run loop, without implementing real HTTP.
type EchoHTTPWork struct {
	Fd int
}

var staticResponse = []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")

// Run implements coro.Work.
func (w EchoHTTPWork) Run(s *coro.Scheduler) int {
	defer unix.Close(w.Fd)

	buf := make([]byte, 512)
	total := 0
	frame := HeaderTerminatedFrame{}

	for {
		if total == len(buf) {
			grown := make([]byte, len(buf)*2)
			copy(grown, buf[:total])
			buf = grown
		}
		n, err := s.Recv(w.Fd, buf[total:])
		if err != nil {
			return -1
		}
		if n == 0 {
			return 0
		}
		total += n

		switch got := frame.CheckPkg(buf[:total]); {
		case got < 0:
			return -1
		case got > 0:
			_, err := s.Send(w.Fd, staticResponse, 0)
			if err != nil {
				return -1
			}
			return 0
		}
	}
}
