package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/internal/channel"
	"github.com/wiregate-web/wiregate/internal/tcp"
	"github.com/wiregate-web/wiregate/kv"
	"github.com/wiregate-web/wiregate/wire"
)

// closeInternalError is sent when the handler fails after the channel opened.
const closeInternalError uint16 = 1011

// InvokeChannel drives an upgraded full-duplex channel: handshake validation,
// accept-or-reject by the handler, then free-form message pumping until either
// side closes. The connection never outlives the channel.
func (a *Adapter) InvokeChannel(
	ctx *gateway.Context, handler gateway.EventHandler, msg *wire.Message, client tcp.Client,
) error {
	hs, err := channel.ValidateUpgrade(msg)
	if err != nil {
		return err
	}

	flow := &channelFlow{
		a:         a,
		client:    client,
		proto:     ctx.Proto,
		handshake: hs,
		inbound:   make(chan gateway.Event, a.cfg.Events.QueueSize),
		done:      make(chan struct{}),
	}
	ctx.BindEvents(flow.receive, flow.send)

	herr := a.callHandler(ctx, handler)

	if flow.violation != nil {
		a.log.Error("handler violated the channel protocol",
			zap.String("path", ctx.Path), zap.Error(flow.violation))
	} else if herr != nil {
		a.log.Error("channel handler failed", zap.String("path", ctx.Path), zap.Error(herr))
	}

	return flow.finalize(herr)
}

// channelFlow is the per-channel state machine: connect-received, then
// accepted or rejected, then open until closed.
type channelFlow struct {
	a         *Adapter
	client    tcp.Client
	proto     string
	handshake channel.Handshake

	inbound chan gateway.Event
	done    chan struct{}

	connectDelivered bool
	accepted         bool
	rejected         bool
	sawDisconnect    bool
	peerClosed       bool
	peerCode         uint16
	violation        error

	// sendMu serializes outbound frames: handler messages, pong replies from
	// the reader goroutine, and the final close frame.
	sendMu    sync.Mutex
	closeSent bool
}

// receive first delivers the connect notification, then inbound peer messages.
// A peer vanishing without a close frame surfaces as an idempotent Disconnect.
func (f *channelFlow) receive() (gateway.Event, error) {
	if !f.connectDelivered {
		f.connectDelivered = true
		return gateway.ChannelConnect{Subprotocols: f.handshake.Subprotocols}, nil
	}

	if !f.accepted {
		f.violation = status.ErrProtocolViolation
		return nil, f.violation
	}

	if f.sawDisconnect {
		return gateway.Disconnect{}, nil
	}

	ev, ok := <-f.inbound
	if !ok {
		f.sawDisconnect = true
		return gateway.Disconnect{}, nil
	}

	if closeEv, isClose := ev.(gateway.ChannelClose); isClose {
		f.peerClosed = true
		f.peerCode = closeEv.Code
	}

	return ev, nil
}

func (f *channelFlow) send(ev gateway.Event) error {
	if f.violation != nil {
		return f.violation
	}

	switch ev := ev.(type) {
	case gateway.ChannelAccept:
		if f.accepted || f.rejected {
			f.violation = status.ErrDoubleInitiation
			return f.violation
		}

		if err := channel.WriteAccept(f.client, f.handshake.Key, ev.Subprotocol); err != nil {
			return err
		}

		f.accepted = true
		go f.pump()

		return nil
	case gateway.ChannelClose:
		if f.rejected {
			f.violation = status.ErrResponseCompleted
			return f.violation
		}

		if !f.accepted {
			// a close before accept rejects the handshake at the HTTP level
			f.rejected = true
			return f.a.serializer.WriteBuffered(
				f.client, f.proto, status.Forbidden,
				kv.New().Add("connection", "close"), nil, false,
			)
		}

		if !f.writeClose(ev.Code) {
			f.violation = status.ErrResponseCompleted
			return f.violation
		}

		return nil
	case gateway.ChannelMessage:
		if !f.accepted {
			f.violation = status.ErrProtocolViolation
			return f.violation
		}

		opcode := channel.OpText
		if ev.Binary {
			opcode = channel.OpBinary
		}

		f.sendMu.Lock()
		defer f.sendMu.Unlock()

		if f.closeSent {
			f.violation = status.ErrResponseCompleted
			return f.violation
		}

		return channel.WriteFrame(f.client, opcode, ev.Data)
	default:
		f.violation = status.ErrProtocolViolation
		return f.violation
	}
}

// pump reads peer frames and feeds them to the handler as events. It owns the
// inbound queue and closes it when the peer goes away or closes the channel.
func (f *channelFlow) pump() {
	defer close(f.inbound)

	reader := tcp.AsReader(f.client)
	assembler := channel.Assembler{Max: f.a.cfg.Channel.MaxMessageSize}

	for {
		frame, err := channel.ReadFrame(reader, f.a.cfg.Channel.MaxMessageSize)
		if err != nil {
			return
		}

		message, ready, err := assembler.Feed(frame)
		if err != nil {
			return
		}
		if !ready {
			continue
		}

		switch message.Opcode {
		case channel.OpPing:
			f.sendMu.Lock()
			if !f.closeSent {
				_ = channel.WriteFrame(f.client, channel.OpPong, message.Payload)
			}
			f.sendMu.Unlock()
		case channel.OpPong:
		case channel.OpClose:
			code := channel.CloseCode(message.Payload, f.a.cfg.Channel.DefaultCloseCode)
			f.deliver(gateway.ChannelClose{Code: code})
			return
		default:
			if !f.deliver(gateway.ChannelMessage{
				Data:   message.Payload,
				Binary: message.Opcode == channel.OpBinary,
			}) {
				return
			}
		}
	}
}

func (f *channelFlow) deliver(ev gateway.Event) bool {
	select {
	case f.inbound <- ev:
		return true
	case <-f.done:
		return false
	}
}

// writeClose sends the close frame, reporting whether this call was the one
// that actually closed. Exactly one close frame leaves the engine per channel.
func (f *channelFlow) writeClose(code uint16) bool {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	if f.closeSent {
		return false
	}

	f.closeSent = true
	_ = channel.WriteFrame(f.client, channel.OpClose, channel.ClosePayload(code))

	return true
}

// finalize completes the channel after the handler returned: echo the peer's
// close code, or the configured default when the handler just returned, or
// 1011 when it failed.
func (f *channelFlow) finalize(handlerErr error) error {
	if f.accepted {
		close(f.done)

		code := f.a.cfg.Channel.DefaultCloseCode
		if f.peerClosed {
			code = f.peerCode
		}
		if handlerErr != nil || f.violation != nil {
			code = closeInternalError
		}

		f.writeClose(code)

		return status.ErrCloseConnection
	}

	if !f.rejected {
		// the handler never answered the connect notification
		if err := f.a.serializer.WriteError(f.client, f.proto, status.ErrInternalServerError); err != nil {
			return err
		}
	}

	return status.ErrCloseConnection
}
