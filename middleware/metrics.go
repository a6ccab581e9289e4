package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wiregate-web/wiregate/gateway"
	"github.com/wiregate-web/wiregate/gateway/status"
	"github.com/wiregate-web/wiregate/kv"
)

// Metrics instruments synchronous exchanges: a request counter by method and
// status, a duration histogram, and an in-flight gauge.
func Metrics(reg prometheus.Registerer) gateway.Interceptor {
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "wiregate_requests_total",
		Help: "Completed exchanges by method and status code.",
	}, []string{"method", "code"})

	duration := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "wiregate_request_duration_seconds",
		Help:    "Handler latency.",
		Buckets: prometheus.DefBuckets,
	})

	inflight := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "wiregate_requests_in_flight",
		Help: "Exchanges currently being handled.",
	})

	return func(next gateway.Handler) gateway.Handler {
		return func(ctx *gateway.Context, begin gateway.Begin) gateway.BodyStream {
			inflight.Inc()
			defer inflight.Dec()

			var code status.Code
			observed := func(c status.Code, headers *kv.Storage, failure error) error {
				code = c
				return begin(c, headers, failure)
			}

			started := time.Now()
			stream := next(ctx, observed)

			duration.Observe(time.Since(started).Seconds())
			requests.WithLabelValues(ctx.Method, strconv.Itoa(int(code))).Inc()

			return stream
		}
	}
}
