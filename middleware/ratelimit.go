package middleware

import (
	"golang.org/x/time/rate"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// RateLimit short-circuits exchanges above the allowed rate with a 429,
// without ever invoking the wrapped handler. The limiter is shared across all
// connections of the chain it is installed on.
func RateLimit(limiter *rate.Limiter) gateway.Interceptor {
	return func(next gateway.Handler) gateway.Handler {
		return func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			if !limiter.Allow() {
				_ = begin(
					status.TooManyRequests,
					kv.New().Add("content-type", "text/plain"),
					nil,
				)

				return gateway.Chunks([]byte("too many requests"))
			}

			return next(ctx, begin)
		}
	}
}
