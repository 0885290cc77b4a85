// Package httpframe is a minimal consumer of coro's recv/send
// primitives: an IsComplete implementation that TcpSendAndRecv can use,
// and a server-side Work that drives Recv/Send itself. It is
// intentionally NOT an HTTP/1.1 parser: spec.md §1 keeps wire parsers
// out of scope, describing them only as "an external collaborator...
// discussed only as a consumer of recv." This package implements
// exactly that collaboration boundary, grounded on
// original_source/http/http_server.cc's HttpCheckPkg/HttpSrvWork shape.
package httpframe

import "bytes"

// DefaultMaxHeaderSize bounds how large a request may grow while still
// searching for the header terminator, before HeaderTerminatedFrame
// gives up and reports the frame as malformed.
const DefaultMaxHeaderSize = 1 << 20 // 1 MiB

var headerTerminator = []byte("\r\n\r\n")

// HeaderTerminatedFrame is a coro.IsComplete implementation that
// recognizes the end of an HTTP-style header block (a bare "\r\n\r\n")
// and, if the headers name a Content-Length, waits for that many body
// bytes afterward. It does not validate the request line, header
// syntax, or method -- real parsing is explicitly out of scope.
type HeaderTerminatedFrame struct {
	// MaxSize caps how many bytes may accumulate before the terminator
	// is found. Zero means DefaultMaxHeaderSize.
	MaxSize int
}

// CheckPkg implements coro.IsComplete.
func (h HeaderTerminatedFrame) CheckPkg(buf []byte) int {
	max := h.MaxSize
	if max <= 0 {
		max = DefaultMaxHeaderSize
	}

	idx := bytes.Index(buf, headerTerminator)
	if idx < 0 {
		if len(buf) > max {
			return -1
		}
		return 0
	}

	headerEnd := idx + len(headerTerminator)
	contentLength := parseContentLength(buf[:headerEnd])
	total := headerEnd + contentLength
	if len(buf) < total {
		if total > max {
			return -1
		}
		return 0
	}
	return total
}

// parseContentLength does a bare-bones, case-insensitive scan for a
// "Content-Length:" header line. It is deliberately forgiving -- any
// malformed value is treated as zero (no body expected) -- since a real
// parser is explicitly out of scope for this package.
func parseContentLength(header []byte) int {
	const key = "content-length:"
	lower := bytes.ToLower(header)
	idx := bytes.Index(lower, []byte(key))
	if idx < 0 {
		return 0
	}
	rest := header[idx+len(key):]
	eol := bytes.IndexByte(rest, '\n')
	if eol >= 0 {
		rest = rest[:eol]
	}
	rest = bytes.TrimSpace(rest)

	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
		if n > DefaultMaxHeaderSize {
			return DefaultMaxHeaderSize
		}
	}
	return n
}
