// Package wire turns raw byte streams into structured messages and structured
// responses back into wire bytes. It knows HTTP/1.x framing and nothing above it.
package wire

import (
	"strings"

	"github.com/wiregate-web/wiregate/kv"
)

// Message is an immutable record of one parsed request. It is created once per
// request by the parser and never mutated afterward.
type Message struct {
	Method   string
	Path     string
	RawQuery string
	Proto    string
	// Headers is the ordered header list. Names are lower-cased on insert;
	// duplicates are preserved in arrival order.
	Headers *kv.Storage
	Body    []byte
}

// IsUpgrade reports whether the message asks for a channel upgrade.
func (m *Message) IsUpgrade() bool {
	if !strings.EqualFold(m.Headers.Value("upgrade"), "websocket") {
		return false
	}

	for _, token := range strings.Split(m.Headers.Value("connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}

	return false
}

// KeepAlive reports whether the connection survives this exchange, respecting
// the protocol version defaults.
func (m *Message) KeepAlive() bool {
	switch m.Proto {
	case "HTTP/1.0":
		return strings.EqualFold(m.Headers.Value("connection"), "keep-alive")
	case "HTTP/1.1":
		return !strings.EqualFold(m.Headers.Value("connection"), "close")
	default:
		return false
	}
}
