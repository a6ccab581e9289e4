package dispatch

import (
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/wire"
)

// buildContext maps a parsed message plus transport metadata into the
// normalized representation handlers receive. The context belongs to exactly
// one connection and never crosses goroutines.
func buildContext(kind gateway.Kind, msg *wire.Message, client tcp.Client, scheme string) *gateway.Context {
	return &gateway.Context{
		Kind:       kind,
		Method:     msg.Method,
		Path:       msg.Path,
		RawQuery:   msg.RawQuery,
		Proto:      msg.Proto,
		Scheme:     scheme,
		Headers:    msg.Headers,
		Body:       msg.Body,
		RemoteAddr: client.Remote(),
		LocalAddr:  client.Local(),
		Scope:      map[string]any{},
	}
}
