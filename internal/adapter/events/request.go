package events

import (
	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/wire"
)

// maxFinalDeliveries bounds how many times the exhausted body may be re-served
// as a final chunk to a handler that keeps asking without ever starting a
// response. Past the bound the adapter gives up with a protocol violation
// instead of spinning.
const maxFinalDeliveries = 5

// InvokeRequest drives one request/response exchange over the event protocol.
// The connection is not reused afterwards: event-mode responses always close.
func (a *Adapter) InvokeRequest(ctx *gateway.Context, handler gateway.EventHandler, client tcp.Client) error {
	flow := &requestFlow{
		a:      a,
		client: client,
		proto:  ctx.Proto,
		chunks: splitBody(ctx.Body, a.cfg.NET.ReadBufferSize),
	}
	ctx.BindEvents(flow.receive, flow.send)

	err := a.callHandler(ctx, handler)

	switch {
	case flow.violation != nil:
		a.log.Error("handler violated the event protocol",
			zap.String("path", ctx.Path), zap.Error(flow.violation))
	case err != nil:
		a.log.Error("event handler failed", zap.String("path", ctx.Path), zap.Error(err))
		if !flow.started {
			if werr := a.serializer.WriteError(client, ctx.Proto, status.ErrInternalServerError); werr != nil {
				return werr
			}
		}
	case !flow.started:
		a.log.Error("handler completed without starting a response", zap.String("path", ctx.Path))
		if werr := a.serializer.WriteError(client, ctx.Proto, status.ErrInternalServerError); werr != nil {
			return werr
		}
	case !flow.completed:
		a.log.Warn("handler left the response incomplete", zap.String("path", ctx.Path))
	}

	return status.ErrCloseConnection
}

// requestFlow is the per-exchange state machine: awaiting-body, then
// response-started once ResponseStart is sent, then response-complete on the
// final chunk.
type requestFlow struct {
	a      *Adapter
	client tcp.Client
	proto  string

	chunks [][]byte
	finals int

	started       bool
	completed     bool
	framing       wire.Framing
	sawDisconnect bool
	violation     error
}

// receive serves the pre-read body as chunk events. Once the body is
// exhausted, the peer is probed: a read failure becomes a Disconnect event,
// re-delivered idempotently on every following receive.
func (f *requestFlow) receive() (gateway.Event, error) {
	if f.sawDisconnect {
		return gateway.Disconnect{}, nil
	}

	if len(f.chunks) > 0 {
		chunk := f.chunks[0]
		f.chunks = f.chunks[1:]
		more := len(f.chunks) > 0

		if !more {
			f.finals++
		}

		return gateway.BodyChunk{Data: chunk, More: more}, nil
	}

	data, err := f.client.Read()
	if err != nil {
		f.sawDisconnect = true
		return gateway.Disconnect{}, nil
	}

	// the peer is alive; whatever it sent belongs to the next exchange
	f.client.Unread(data)

	f.finals++
	if f.finals > maxFinalDeliveries {
		f.violation = status.ErrProtocolViolation
		return nil, f.violation
	}

	return gateway.BodyChunk{More: false}, nil
}

func (f *requestFlow) send(ev gateway.Event) error {
	if f.violation != nil {
		return f.violation
	}

	switch ev := ev.(type) {
	case gateway.ResponseStart:
		if f.completed {
			f.violation = status.ErrResponseCompleted
			return f.violation
		}
		if f.started {
			f.violation = status.ErrDoubleInitiation
			return f.violation
		}

		f.framing = wire.DetectFraming(ev.Headers)
		if err := f.a.serializer.WriteHead(f.client, f.proto, ev.Code, ev.Headers, f.framing); err != nil {
			return err
		}

		f.started = true

		return nil
	case gateway.ResponseChunk:
		if !f.started {
			f.violation = status.ErrProtocolViolation
			return f.violation
		}
		if f.completed {
			f.violation = status.ErrResponseCompleted
			return f.violation
		}

		if err := f.a.serializer.WriteChunk(f.client, ev.Data, f.framing); err != nil {
			return err
		}

		if !ev.More {
			f.completed = true
			return f.a.serializer.Finish(f.client, f.framing)
		}

		return nil
	default:
		f.violation = status.ErrProtocolViolation
		return f.violation
	}
}

// splitBody slices the pre-read body into chunk-sized events. An empty body
// still yields one empty final chunk, so every handler sees More=false exactly
// once on the happy path.
func splitBody(body []byte, chunkSize int) [][]byte {
	if len(body) == 0 {
		return [][]byte{nil}
	}

	chunks := make([][]byte, 0, len(body)/chunkSize+1)
	for len(body) > chunkSize {
		chunks = append(chunks, body[:chunkSize])
		body = body[chunkSize:]
	}

	return append(chunks, body)
}
