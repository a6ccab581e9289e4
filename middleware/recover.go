// Package middleware ships interceptors for the concerns almost every
// deployment wants wired around its handlers.
package middleware

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// Recover converts handler panics into a 500 response when nothing reached the
// wire yet. Panics after the response was flushed still terminate the
// connection, which is the only honest option left.
func Recover(log *zap.Logger) gateway.Interceptor {
	return func(next gateway.Handler) gateway.Handler {
		return func(ctx *gateway.Context, begin gateway.Begin) (stream gateway.BodyStream) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panicked",
						zap.String("path", ctx.Path), zap.Any("panic", r))

					_ = begin(
						status.InternalServerError,
						kv.New().Add("content-type", "text/plain"),
						fmt.Errorf("recovered: %v", r),
					)
					stream = gateway.Chunks([]byte("internal server error"))
				}
			}()

			return next(ctx, begin)
		}
	}
}
