package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"kvbridge/envelope"
)

// Retry re-runs requests that failed with a transient backend error, with
// exponential backoff. Transient means the backend was momentarily busy —
// sqlite's "database is locked" is the canonical case. Anything else returns
// immediately.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp == nil || resp.Action != envelope.ActionError {
					return resp
				}
				if transient(resp.Message) {
					log.Printf("Retry attempt %d for %s %q due to error: %s", i+1, req.Action, req.Key, resp.Message)
					time.Sleep(baseDelay * time.Duration(1<<i)) // Exponential backoff
					resp = next(ctx, req)
				} else {
					return resp
				}
			}
			return resp
		}
	}
}

func transient(message string) bool {
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database table is locked") ||
		strings.Contains(message, "busy")
}
