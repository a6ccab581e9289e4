package gateway

import (
	"errors"
	"net"

	json "github.com/json-iterator/go"
	"github.com/wiregate-web/wiregate/kv"
)

type (
	// ReceiveFunc blocks until the next inbound event.
	ReceiveFunc func() (Event, error)
	// SendFunc hands an outbound event to the adapter.
	SendFunc func(Event) error
)

// Context is the normalized per-connection representation handlers receive. It
// is constructed and owned by the connection dispatcher for the duration of one
// connection; handlers borrow it and must not retain it beyond the call.
type Context struct {
	Kind Kind

	Method   string
	Path     string
	RawQuery string
	Proto    string
	Scheme   string

	Headers *kv.Storage
	Body    []byte

	RemoteAddr net.Addr
	LocalAddr  net.Addr

	// Scope carries interceptor- and application-owned values across the chain.
	Scope map[string]any

	receive ReceiveFunc
	send    SendFunc
}

// ReceiveEvent blocks until the next inbound event arrives. Only available in
// the asynchronous protocol.
func (c *Context) ReceiveEvent() (Event, error) {
	if c.receive == nil {
		return nil, errors.New("gateway: context is not event-driven")
	}

	return c.receive()
}

// SendEvent hands an outbound event to the adapter. Events reach the wire
// strictly in SendEvent call order.
func (c *Context) SendEvent(ev Event) error {
	if c.send == nil {
		return errors.New("gateway: context is not event-driven")
	}

	return c.send(ev)
}

// BindEvents attaches the inbound and outbound event queues. Called by the
// invocation adapter before the handler runs.
func (c *Context) BindEvents(receive ReceiveFunc, send SendFunc) {
	c.receive = receive
	c.send = send
}

// WrapSend lets an interceptor observe or rewrite outbound events. The wrapper
// receives the current sink and must forward to it, preserving the protocol's
// ordering rules.
func (c *Context) WrapSend(mw func(next SendFunc) SendFunc) {
	if c.send != nil {
		c.send = mw(c.send)
	}
}

// WrapReceive lets an interceptor observe or rewrite inbound events.
func (c *Context) WrapReceive(mw func(next ReceiveFunc) ReceiveFunc) {
	if c.receive != nil {
		c.receive = mw(c.receive)
	}
}

// JSON decodes the buffered request body into v.
func (c *Context) JSON(v any) error {
	return json.Unmarshal(c.Body, v)
}
