package middleware

import (
	"context"
	"log"
	"time"

	"kvbridge/envelope"
)

// Logging logs every handled request: action, key, duration, and the error
// message when the backend failed.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)
			log.Printf("Action: %s, Key: %q, Duration: %s", req.Action, req.Key, duration)
			if resp != nil && resp.Action == envelope.ActionError {
				log.Printf("Error: %s", resp.Message)
			}
			return resp
		}
	}
}
