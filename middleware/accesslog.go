package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// AccessLog logs one line per synchronous exchange: method, path, the status
// the handler initiated with, and how long the handler ran.
func AccessLog(log *zap.Logger) gateway.Interceptor {
	return func(next gateway.Handler) gateway.Handler {
		return func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			var code status.Code

			observed := func(c status.Code, headers *kv.Storage, failure error) error {
				code = c
				return begin(c, headers, failure)
			}

			started := time.Now()
			stream := next(ctx, observed)

			log.Info("served",
				zap.String("method", ctx.Method),
				zap.String("path", ctx.Path),
				zap.Uint16("code", uint16(code)),
				zap.Duration("took", time.Since(started)),
			)

			return stream
		}
	}
}

// EventAccessLog is the asynchronous counterpart: it observes the outbound
// event stream for the response start and logs once the handler completes.
func EventAccessLog(log *zap.Logger) gateway.EventInterceptor {
	return func(next gateway.EventHandler) gateway.EventHandler {
		return func(ctx *gateway.Context) error {
			var code status.Code

			ctx.WrapSend(func(send gateway.SendFunc) gateway.SendFunc {
				return func(ev gateway.Event) error {
					if start, ok := ev.(gateway.ResponseStart); ok {
						code = start.Code
					}

					return send(ev)
				}
			})

			started := time.Now()
			err := next(ctx)

			log.Info("served",
				zap.Stringer("kind", ctx.Kind),
				zap.String("method", ctx.Method),
				zap.String("path", ctx.Path),
				zap.Uint16("code", uint16(code)),
				zap.Duration("took", time.Since(started)),
				zap.Error(err),
			)

			return err
		}
	}
}
