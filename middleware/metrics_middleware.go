package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kvbridge/envelope"
)

// Metrics counts handled requests by action and outcome and observes their
// duration. The collectors are registered on reg; pass
// prometheus.DefaultRegisterer to expose them via promhttp.
func Metrics(reg prometheus.Registerer) Middleware {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvbridge",
		Name:      "requests_total",
		Help:      "Requests handled by the dispatcher.",
	}, []string{"action", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kvbridge",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling a request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})
	reg.MustRegister(requests, duration)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
			start := time.Now()
			resp := next(ctx, req)
			duration.WithLabelValues(string(req.Action)).Observe(time.Since(start).Seconds())

			outcome := "success"
			if resp != nil && resp.Action == envelope.ActionError {
				outcome = "error"
			}
			requests.WithLabelValues(string(req.Action), outcome).Inc()
			return resp
		}
	}
}
