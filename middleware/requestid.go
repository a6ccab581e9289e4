package middleware

import (
	"github.com/dchest/uniuri"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// RequestIDKey is the scope key under which the generated id is stored.
const RequestIDKey = "request_id"

const requestIDHeader = "x-request-id"

// RequestID tags every exchange with a random id: stored in the scope for
// downstream interceptors and echoed in the response headers. A peer-supplied
// id is preserved.
func RequestID() gateway.Interceptor {
	return func(next gateway.Handler) gateway.Handler {
		return func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			id := ctx.Headers.Value(requestIDHeader)
			if id == "" {
				id = uniuri.New()
			}

			ctx.Scope[RequestIDKey] = id

			tagged := func(code status.Code, headers *kv.Storage, failure error) error {
				if headers == nil {
					headers = kv.New()
				}
				if !headers.Has(requestIDHeader) {
					headers.Add(requestIDHeader, id)
				}

				return begin(code, headers, failure)
			}

			return next(ctx, tagged)
		}
	}
}
