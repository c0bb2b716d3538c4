package middleware

import (
	"context"
	"time"

	"kvbridge/envelope"
)

// Timeout bounds how long a backend operation may run. On expiry the caller
// gets an error envelope; the stray backend call finishes in its goroutine
// and its result is discarded.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *envelope.Envelope, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return envelope.Error(req, "request timed out")
			}
		}
	}
}
