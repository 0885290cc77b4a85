package httpframe

import "testing"

func TestHeaderTerminatedFrameIncompletePrefix(t *testing.T) {
	f := HeaderTerminatedFrame{}
	if got := f.CheckPkg([]byte("GET / HTTP/1.1\r\nHost: x")); got != 0 {
		t.Fatalf("CheckPkg() = %d, want 0 (incomplete)", got)
	}
}

func TestHeaderTerminatedFrameNoBody(t *testing.T) {
	f := HeaderTerminatedFrame{}
	req := []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if got := f.CheckPkg(req); got != len(req) {
		t.Fatalf("CheckPkg() = %d, want %d", got, len(req))
	}
}

func TestHeaderTerminatedFrameWaitsForBody(t *testing.T) {
	f := HeaderTerminatedFrame{}
	headers := []byte("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n")

	if got := f.CheckPkg(headers); got != 0 {
		t.Fatalf("CheckPkg() with body pending = %d, want 0", got)
	}

	full := append(append([]byte{}, headers...), []byte("hello")...)
	if got := f.CheckPkg(full); got != len(full) {
		t.Fatalf("CheckPkg() complete = %d, want %d", got, len(full))
	}
}

func TestHeaderTerminatedFrameMalformedOversize(t *testing.T) {
	f := HeaderTerminatedFrame{MaxSize: 8}
	if got := f.CheckPkg([]byte("GET / HTTP/1.1\r\n")); got >= 0 {
		t.Fatalf("CheckPkg() over MaxSize without terminator = %d, want <0", got)
	}
}

// TestHeaderTerminatedFramePeerClosesMidRequest covers the framing half
// of spec.md §8 scenario 6: a peer that closes the connection before
// completing a request. It calls HeaderTerminatedFrame.CheckPkg directly
// on the partial bytes, with no socket and no Scheduler, since only the
// termination logic (not the suspension machinery, covered by the core
// package's own tests) is under test here.
func TestHeaderTerminatedFramePeerClosesMidRequest(t *testing.T) {
	f := HeaderTerminatedFrame{}
	partial := []byte("GET / HTTP/1.1\r\nHost: exa")
	if got := f.CheckPkg(partial); got != 0 {
		t.Fatalf("CheckPkg() on partial-then-closed request = %d, want 0 (still incomplete, caller sees EOF via Recv returning 0)", got)
	}
}
