package gateway

// Interceptor wraps a synchronous handler with another of the same signature,
// preserving the invocation contract.
type Interceptor func(next Handler) Handler

// EventInterceptor does the same for the asynchronous protocol.
type EventInterceptor func(next EventHandler) EventHandler

// Chain composes interceptors around a terminal handler. Registering [A, B, C]
// produces A(B(C(terminal))): inbound control flow visits A, B, C, then the
// terminal handler, and the response unwinds in reverse. A chain is built once
// at startup and is immutable and shareable afterwards.
type Chain struct {
	terminal     Handler
	interceptors []Interceptor
}

func NewChain(terminal Handler) *Chain {
	return &Chain{terminal: terminal}
}

func (c *Chain) Use(interceptors ...Interceptor) *Chain {
	c.interceptors = append(c.interceptors, interceptors...)
	return c
}

func (c *Chain) Build() Handler {
	handler := c.terminal
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		handler = c.interceptors[i](handler)
	}

	return handler
}

// EventChain is the asynchronous counterpart of Chain.
type EventChain struct {
	terminal     EventHandler
	interceptors []EventInterceptor
}

func NewEventChain(terminal EventHandler) *EventChain {
	return &EventChain{terminal: terminal}
}

func (c *EventChain) Use(interceptors ...EventInterceptor) *EventChain {
	c.interceptors = append(c.interceptors, interceptors...)
	return c
}

func (c *EventChain) Build() EventHandler {
	handler := c.terminal
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		handler = c.interceptors[i](handler)
	}

	return handler
}
