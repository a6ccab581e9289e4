// Package unary implements the single-shot synchronous invocation protocol: one
// handler call, one returned body stream, and a side-effecting initiation
// callback.
package unary

import (
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
	"github.com/wiregate-web/wiregate/wire"
)

type Adapter struct {
	serializer      *wire.Serializer
	writeBufferSize int
	log             *zap.Logger
}

func New(serializer *wire.Serializer, writeBufferSize int, log *zap.Logger) *Adapter {
	return &Adapter{
		serializer:      serializer,
		writeBufferSize: writeBufferSize,
		log:             log,
	}
}

// draft accumulates the response until the adapter decides to flush. Nothing
// reaches the wire before either the body outgrows the write buffer or the
// handler completes, which is what makes the begin-rewind rule implementable.
type draft struct {
	code      status.Code
	headers   *kv.Storage
	initiated bool
	flushed   bool
	framing   wire.Framing
	violation error
	// measured counts HEAD body bytes, which are dropped instead of buffered
	measured int
}

// Invoke calls the handler exactly once and serializes whatever it produces.
// A nil return means the exchange completed cleanly and the connection may be
// kept alive; any error demands closing the connection.
func (a *Adapter) Invoke(ctx *gateway.Context, handler gateway.Handler, w wire.Writer) error {
	d := &draft{}

	begin := func(code status.Code, headers *kv.Storage, failure error) error {
		if !d.initiated {
			d.initiated = true
			d.code, d.headers = code, headers
			return nil
		}

		if failure == nil {
			d.violation = status.ErrDoubleInitiation
			return d.violation
		}

		if d.flushed {
			// bytes already reached the wire and cannot be un-sent; the
			// connection will be terminated abnormally
			a.log.Error("handler reported a failure after the response was flushed",
				zap.String("path", ctx.Path), zap.Error(failure))
			d.violation = status.ErrDoubleInitiation
			return d.violation
		}

		// nothing was flushed: the replacement status and headers win
		d.code, d.headers = code, headers

		return nil
	}

	stream, panicked := a.callHandler(ctx, handler, begin)
	if panicked {
		return a.contain(ctx, d, w)
	}

	if stream == nil {
		stream = gateway.NoBody()
	}

	body, err := a.drain(ctx, d, stream, w)
	if err != nil {
		return a.contain(ctx, d, w)
	}

	if d.violation != nil {
		a.log.Error("handler violated the invocation contract",
			zap.String("path", ctx.Path), zap.Error(d.violation))
		return status.ErrCloseConnection
	}

	if !d.initiated {
		a.log.Error("handler completed without initiating a response",
			zap.String("path", ctx.Path))
		return a.contain(ctx, d, w)
	}

	if d.flushed {
		if err = a.serializer.Finish(w, d.framing); err != nil {
			return err
		}

		// streamed responses give up on the framing bookkeeping required for
		// connection reuse
		return status.ErrCloseConnection
	}

	if ctx.Method == "HEAD" {
		return a.serializer.WriteBuffered(w, ctx.Proto, d.code, withLength(d.headers, d.measured), nil, true)
	}

	return a.serializer.WriteBuffered(w, ctx.Proto, d.code, d.headers, body, false)
}

// withLength declares the measured body length unless the handler already did.
func withLength(headers *kv.Storage, length int) *kv.Storage {
	if headers == nil {
		headers = kv.New()
	}

	if !headers.Has("content-length") {
		headers.Set("content-length", strconv.Itoa(length))
	}

	return headers
}

// callHandler isolates handler panics from the dispatcher.
func (a *Adapter) callHandler(
	ctx *gateway.Context, handler gateway.Handler, begin gateway.Begin,
) (stream gateway.BodyStream, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler panicked", zap.String("path", ctx.Path), zap.Any("panic", r))
			panicked = true
		}
	}()

	return handler(ctx, begin), false
}

// drain eagerly consumes the body stream, buffering chunks until the write
// buffer overflows, then switching to streaming. The stream's release routine
// runs exactly once, even if iteration panics.
func (a *Adapter) drain(
	ctx *gateway.Context, d *draft, stream gateway.BodyStream, w wire.Writer,
) (body []byte, err error) {
	released := false
	release := func() {
		if !released {
			released = true
			if closeErr := stream.Close(); closeErr != nil {
				a.log.Warn("body stream release failed", zap.Error(closeErr))
			}
		}
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler panicked while producing the body",
				zap.String("path", ctx.Path), zap.Any("panic", r))
			err = status.ErrInternalServerError
		}
	}()

	for {
		chunk, nextErr := stream.Next()
		if nextErr == io.EOF {
			return body, nil
		}
		if nextErr != nil {
			a.log.Error("body stream failed", zap.String("path", ctx.Path), zap.Error(nextErr))
			return nil, nextErr
		}

		if d.violation != nil {
			return nil, d.violation
		}

		if len(chunk) == 0 {
			continue
		}

		if !d.initiated {
			d.violation = status.ErrBodyBeforeStart
			return nil, d.violation
		}

		if ctx.Method == "HEAD" {
			// the body never reaches the wire regardless of its size; only
			// its length survives, declared in the head
			d.measured += len(chunk)
			continue
		}

		if d.flushed {
			if err = a.serializer.WriteChunk(w, chunk, d.framing); err != nil {
				return nil, err
			}
			continue
		}

		body = append(body, chunk...)
		if len(body) > a.writeBufferSize {
			if err = a.flush(ctx, d, body, w); err != nil {
				return nil, err
			}
			body = nil
		}
	}
}

// flush sends the head and everything buffered so far, committing to a body
// framing: the handler's explicit length if declared, close-delimited otherwise.
func (a *Adapter) flush(ctx *gateway.Context, d *draft, body []byte, w wire.Writer) error {
	d.framing = wire.FramingClose
	if d.headers != nil && d.headers.Has("content-length") {
		d.framing = wire.FramingLength
	}

	if err := a.serializer.WriteHead(w, ctx.Proto, d.code, d.headers, d.framing); err != nil {
		return err
	}

	d.flushed = true

	return a.serializer.WriteChunk(w, body, d.framing)
}

// contain reports a failed invocation: a synthesized 500-class response when
// nothing was sent yet, an unclean close otherwise.
func (a *Adapter) contain(ctx *gateway.Context, d *draft, w wire.Writer) error {
	if !d.flushed {
		if err := a.serializer.WriteError(w, ctx.Proto, status.ErrInternalServerError); err != nil {
			return err
		}
	}

	return status.ErrCloseConnection
}
