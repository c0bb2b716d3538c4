// Package middleware wraps the hub dispatcher's request handling.
//
// A Middleware decorates the HandlerFunc that turns a request envelope into
// its response envelope. Chain composes middlewares in the onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution: A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"kvbridge/envelope"
)

// HandlerFunc processes one request envelope and returns the response to
// send, or nil when no response is owed (unknown action).
type HandlerFunc func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope

// Middleware decorates a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, applied in registration order.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
