package gateway

import (
	"io"

	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// Begin is the initiation callback of the synchronous protocol. The handler must
// call it before or while producing body bytes. Calling it twice is an error
// unless the second call carries a non-nil failure: then, if nothing was flushed
// yet, the new status and headers replace the old ones; if bytes already reached
// the wire, the adapter terminates the connection abnormally.
type Begin func(code status.Code, headers *kv.Storage, failure error) error

// Handler is the synchronous entry point: one call, one returned body stream.
type Handler func(ctx *Context, begin Begin) BodyStream

// EventHandler is the asynchronous entry point. It communicates through
// ctx.ReceiveEvent and ctx.SendEvent and returns when logically complete.
type EventHandler func(ctx *Context) error

// BodyStream is a lazy, finite, single-pass sequence of body chunks. Next
// returns io.EOF when the sequence ends. Close is guaranteed to be called
// exactly once by the adapter, even if iteration is interrupted.
type BodyStream interface {
	Next() ([]byte, error)
	Close() error
}

// Chunks wraps a fixed set of byte chunks into a BodyStream.
func Chunks(chunks ...[]byte) BodyStream {
	return &chunkStream{chunks: chunks}
}

// NoBody returns an empty BodyStream.
func NoBody() BodyStream {
	return &chunkStream{}
}

type chunkStream struct {
	chunks [][]byte
}

func (c *chunkStream) Next() ([]byte, error) {
	if len(c.chunks) == 0 {
		return nil, io.EOF
	}

	chunk := c.chunks[0]
	c.chunks = c.chunks[1:]

	return chunk, nil
}

func (c *chunkStream) Close() error {
	c.chunks = nil
	return nil
}

// StreamOf builds a BodyStream from a producer and an optional release routine.
func StreamOf(next func() ([]byte, error), release func() error) BodyStream {
	return &funcStream{next: next, release: release}
}

type funcStream struct {
	next    func() ([]byte, error)
	release func() error
}

func (f *funcStream) Next() ([]byte, error) {
	return f.next()
}

func (f *funcStream) Close() error {
	if f.release == nil {
		return nil
	}

	return f.release()
}

// ReaderStream adapts an io.Reader into a BodyStream, closing it on release if
// it implements io.Closer.
func ReaderStream(r io.Reader, buffSize int) BodyStream {
	return StreamOf(
		func() ([]byte, error) {
			buff := make([]byte, buffSize)
			n, err := r.Read(buff)
			if n > 0 {
				return buff[:n], nil
			}

			return nil, err
		},
		func() error {
			if closer, ok := r.(io.Closer); ok {
				return closer.Close()
			}

			return nil
		},
	)
}
