// Package dummy provides in-memory tcp.Client implementations for tests.
package dummy

import (
	"io"
	"net"
)

type Addr struct{}

func (Addr) Network() string { return "dummy" }
func (Addr) String() string  { return "dummy" }

// Static replays the given chunks one Read at a time, then keeps returning the
// configured terminal error (io.EOF unless overridden). Writes are accumulated.
type Static struct {
	chunks   [][]byte
	pending  []byte
	terminal error
	Written  []byte
	Closed   bool
}

func NewStatic(chunks ...[]byte) *Static {
	return &Static{
		chunks:   chunks,
		terminal: io.EOF,
	}
}

// NewStaticErr is like NewStatic, but the stream ends with err instead of io.EOF.
func NewStaticErr(err error, chunks ...[]byte) *Static {
	return &Static{
		chunks:   chunks,
		terminal: err,
	}
}

func (s *Static) Read() ([]byte, error) {
	if len(s.pending) > 0 {
		data := s.pending
		s.pending = nil
		return data, nil
	}

	if len(s.chunks) == 0 {
		return nil, s.terminal
	}

	data := s.chunks[0]
	s.chunks = s.chunks[1:]

	return data, nil
}

func (s *Static) Unread(b []byte) {
	if len(b) > 0 {
		s.pending = b
	}
}

func (s *Static) Write(b []byte) error {
	s.Written = append(s.Written, b...)
	return nil
}

func (s *Static) Remote() net.Addr { return Addr{} }
func (s *Static) Local() net.Addr  { return Addr{} }

func (s *Static) Close() error {
	s.Closed = true
	return nil
}

// Pending returns unconsumed leftovers pushed back via Unread.
func (s *Static) Pending() []byte {
	return s.pending
}
