package gateway

import (
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// Event is a typed message exchanged between an adapter and a handler in the
// asynchronous protocol. Events are immutable values; the only ordering that
// matters is within one connection's stream.
type Event interface {
	event()
}

// BodyChunk carries a piece of the request body. More tells whether further
// chunks are expected.
type BodyChunk struct {
	Data []byte
	More bool
}

// Disconnect signals that the peer closed the connection. It is delivered as a
// regular event so handlers can cancel in-flight work cooperatively, and is
// re-delivered idempotently on every following receive.
type Disconnect struct{}

// ResponseStart initiates the response. Must be sent exactly once, before any
// ResponseChunk.
type ResponseStart struct {
	Code    status.Code
	Headers *kv.Storage
}

// ResponseChunk carries a piece of the response body. A chunk with More=false
// completes the response and releases the connection.
type ResponseChunk struct {
	Data []byte
	More bool
}

// ChannelConnect notifies the handler that a peer finished the upgrade
// handshake and awaits an accept or a rejection.
type ChannelConnect struct {
	Subprotocols []string
}

// ChannelAccept confirms the upgrade, optionally carrying the negotiated
// subprotocol.
type ChannelAccept struct {
	Subprotocol string
}

// ChannelMessage is one peer message on an open channel, in either direction.
type ChannelMessage struct {
	Data   []byte
	Binary bool
}

// ChannelClose terminates the channel with a close code. Sent by either side.
type ChannelClose struct {
	Code uint16
}

// Lifecycle events coordinate engine startup and shutdown with the
// process-scoped lifecycle handler.
type (
	LifecycleBegin   struct{}
	LifecycleReady   struct{}
	LifecycleFailed  struct{ Err error }
	LifecycleEnd     struct{}
	LifecycleStopped struct{}
)

func (BodyChunk) event()        {}
func (Disconnect) event()       {}
func (ResponseStart) event()    {}
func (ResponseChunk) event()    {}
func (ChannelConnect) event()   {}
func (ChannelAccept) event()    {}
func (ChannelMessage) event()   {}
func (ChannelClose) event()     {}
func (LifecycleBegin) event()   {}
func (LifecycleReady) event()   {}
func (LifecycleFailed) event()  {}
func (LifecycleEnd) event()     {}
func (LifecycleStopped) event() {}
