package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"kvbridge/envelope"
)

// RateLimit rejects requests beyond r per second (token bucket with the
// given burst). Rejected requests get an error envelope so the caller's
// completion handler fires instead of leaking in its registry.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
			if !limiter.Allow() {
				return envelope.Error(req, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
