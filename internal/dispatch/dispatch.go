// Package dispatch owns the per-connection loop: parse a message, build the
// context, run it through the composed handler via the configured invocation
// adapter, and decide whether the connection survives the exchange.
package dispatch

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/dchest/uniuri"
	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/adapter/events"
	"github.com/wiregate-web/wiregate/internal/adapter/unary"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/wire"
)

// Mode selects the invocation protocol a dispatcher serves. One dispatcher
// serves exactly one protocol.
type Mode uint8

const (
	ModeUnary Mode = iota + 1
	ModeEvents
)

type Dispatcher struct {
	cfg    config.Config
	mode   Mode
	unary  gateway.Handler
	events gateway.EventHandler
	log    *zap.Logger
}

// NewUnary builds a dispatcher serving the synchronous protocol. The handler is
// expected to be the already-composed chain terminal.
func NewUnary(cfg config.Config, handler gateway.Handler, log *zap.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, mode: ModeUnary, unary: handler, log: log}
}

// NewEvents builds a dispatcher serving the event-streamed protocol, covering
// both plain exchanges and channel upgrades.
func NewEvents(cfg config.Config, handler gateway.EventHandler, log *zap.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, mode: ModeEvents, events: handler, log: log}
}

// OnConn owns one accepted connection from start to finish. It runs in its own
// goroutine, one per connection.
func (d *Dispatcher) OnConn(conn net.Conn) {
	client := tcp.NewClient(conn, d.cfg.NET.ReadTimeout, make([]byte, d.cfg.NET.ReadBufferSize))
	defer client.Close()

	scheme := "http"
	if _, secured := conn.(*tls.Conn); secured {
		scheme = "https"
	}

	d.Serve(client, scheme)
}

// Serve runs the exchange loop until the connection dies: a parse failure, a
// non-reusable response, or the peer hanging up all end it.
func (d *Dispatcher) Serve(client tcp.Client, scheme string) {
	log := d.log.With(
		zap.String("conn", uniuri.NewLen(8)),
		zap.Stringer("remote", client.Remote()),
	)
	parser := wire.NewParser(d.cfg)
	serializer := wire.NewSerializer(
		make([]byte, 0, d.cfg.HTTP.WriteBufferSize), d.cfg.HTTP.DefaultHeaders,
	)

	for {
		msg, err := parser.Parse(client)
		if err != nil {
			if !errors.Is(err, status.ErrDisconnected) {
				log.Debug("rejected a malformed exchange", zap.Error(err))
				_ = serializer.WriteError(client, "HTTP/1.1", err)
			}

			return
		}

		if !d.exchange(msg, client, scheme, serializer, log) {
			return
		}
	}
}

// exchange serves one parsed message, reporting whether the connection may be
// reused for the next one.
func (d *Dispatcher) exchange(
	msg *wire.Message, client tcp.Client, scheme string, serializer *wire.Serializer, log *zap.Logger,
) bool {
	switch d.mode {
	case ModeEvents:
		adapter := events.New(d.cfg, serializer, log)

		if msg.IsUpgrade() {
			ctx := buildContext(gateway.KindChannel, msg, client, scheme)
			err := adapter.InvokeChannel(ctx, d.events, msg, client)
			if errors.Is(err, status.ErrBadHandshake) {
				_ = serializer.WriteError(client, msg.Proto, err)
			}

			return false
		}

		ctx := buildContext(gateway.KindRequest, msg, client, scheme)
		_ = adapter.InvokeRequest(ctx, d.events, client)

		return false
	default:
		adapter := unary.New(serializer, d.cfg.HTTP.WriteBufferSize, log)
		ctx := buildContext(gateway.KindRequest, msg, client, scheme)

		if err := adapter.Invoke(ctx, d.unary, client); err != nil {
			return false
		}

		return msg.KeepAlive()
	}
}
