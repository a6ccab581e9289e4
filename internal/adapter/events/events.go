// Package events implements the event-streamed asynchronous invocation
// protocol: a long-lived handler communicating with the engine through two
// one-directional event queues. Three sub-protocols share this shape:
// request/response, the upgraded full-duplex channel, and the process-scoped
// lifecycle.
package events

import (
	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/config"
	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/wire"
)

type Adapter struct {
	cfg        config.Config
	serializer *wire.Serializer
	log        *zap.Logger
}

func New(cfg config.Config, serializer *wire.Serializer, log *zap.Logger) *Adapter {
	return &Adapter{
		cfg:        cfg,
		serializer: serializer,
		log:        log,
	}
}

// callHandler isolates handler panics from the dispatcher.
func (a *Adapter) callHandler(ctx *gateway.Context, handler gateway.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("event handler panicked",
				zap.String("path", ctx.Path), zap.Any("panic", r))
			err = status.ErrInternalServerError
		}
	}()

	return handler(ctx)
}
