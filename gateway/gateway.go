// Package gateway defines the normalized representation the engine passes to
// application handlers, and the two invocation contracts handlers may implement:
// the single-shot synchronous one and the event-streamed asynchronous one.
package gateway

// Kind tells which connection flavor a context represents.
type Kind uint8

const (
	// KindRequest is an ordinary request/response exchange.
	KindRequest Kind = iota + 1
	// KindChannel is a persistent full-duplex connection established via an
	// upgrade handshake.
	KindChannel
	// KindLifecycle is the process-lifetime pseudo-connection used for startup
	// and shutdown coordination. There is exactly one per engine.
	KindLifecycle
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindChannel:
		return "channel"
	case KindLifecycle:
		return "lifecycle"
	default:
		return "unknown"
	}
}
