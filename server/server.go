// Package server implements the hub-side dispatcher of a kvbridge channel.
//
// Request processing pipeline, per inbound message:
//
//	validate origin → decode envelope → middleware chain → backend operation
//	  → success/error envelope echoing the request's ref
//
// Each message is handled independently and statelessly; the per-connection
// loop serializes backend operations, so the backend needs no locking of its
// own for a single connection.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"kvbridge/envelope"
	"kvbridge/middleware"
	"kvbridge/origin"
	"kvbridge/transport"
)

// Backend is the storage collaborator the dispatcher executes requests
// against. Get returns nil for an absent key; KeyAt reports ok=false when
// the index is out of range. Any error is converted to an error envelope
// carrying its message.
type Backend interface {
	Get(key string) (any, error)
	Set(key string, value any) error
	Remove(key string) error
	Clear() error
	Count() (int, error)
	KeyAt(index int) (string, bool, error)
}

// Dispatcher receives request envelopes, executes them against the backend,
// and replies. Install one per hub context; Serve may be called once per
// client connection.
type Dispatcher struct {
	backend     Backend
	origin      string // expected client origin, or the wildcard
	middlewares []middleware.Middleware

	buildOnce sync.Once
	handler   middleware.HandlerFunc
}

// Option configures NewDispatcher.
type Option func(*Dispatcher)

// WithExpectedOrigin pins the only client origin the dispatcher will serve.
// Messages from any other origin are logged and dropped without a response.
// The default is the wildcard — accept any origin — which is explicitly
// insecure and only suitable when the transport itself is trusted.
func WithExpectedOrigin(o string) Option {
	return func(d *Dispatcher) { d.origin = o }
}

// NewDispatcher creates a dispatcher over the given backend.
func NewDispatcher(backend Backend, opts ...Option) *Dispatcher {
	d := &Dispatcher{backend: backend, origin: origin.Wildcard}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must all be registered before the first Serve call.
func (d *Dispatcher) Use(mw middleware.Middleware) {
	d.middlewares = append(d.middlewares, mw)
}

// Serve announces readiness on conn, then processes messages until the
// connection closes. No failure terminates the loop: malformed envelopes,
// origin mismatches, and unknown actions are logged and dropped; backend
// failures (including panics) become error envelopes.
func (d *Dispatcher) Serve(conn transport.Conn) {
	// Build the middleware chain once, shared by all connections.
	d.buildOnce.Do(func() {
		d.handler = middleware.Chain(d.middlewares...)(d.execute)
	})

	// Tell the client side it may flush its operation queue.
	ready, err := (&envelope.Envelope{Action: envelope.ActionReady}).Encode()
	if err == nil {
		if err := conn.Send(ready); err != nil {
			log.Printf("server: failed to announce readiness: %v", err)
		}
	}

	for msg := range conn.Recv() {
		if !origin.Validate(msg.Origin, d.origin) {
			// No response: the sender is outside the trust boundary and
			// learns nothing, not even that a hub is listening.
			log.Printf("server: rejecting message from origin %q (expected %q)", msg.Origin, d.origin)
			continue
		}

		req, err := envelope.Decode(msg.Data)
		if err != nil {
			log.Printf("server: dropping malformed message from %q: %v", msg.Origin, err)
			continue
		}
		if !req.Action.IsRequest() {
			log.Printf("server: unknown action %q from %q, dropping", req.Action, msg.Origin)
			continue
		}

		resp := d.dispatch(context.Background(), req)
		if resp == nil {
			continue
		}
		data, err := resp.Encode()
		if err != nil {
			log.Printf("server: failed to encode response: %v", err)
			continue
		}
		if err := conn.Send(data); err != nil {
			log.Printf("server: failed to send response: %v", err)
		}
	}
}

// dispatch runs one request through the middleware chain, converting a
// backend panic into an error envelope so the serve loop survives.
func (d *Dispatcher) dispatch(ctx context.Context, req *envelope.Envelope) (resp *envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("server: panic handling %s %q: %v", req.Action, req.Key, r)
			resp = envelope.Error(req, fmt.Sprintf("internal error: %v", r))
		}
	}()
	return d.handler(ctx, req)
}

// execute is the business handler at the end of the middleware chain: it
// maps the request action onto the backend operation and wraps the result.
func (d *Dispatcher) execute(_ context.Context, req *envelope.Envelope) *envelope.Envelope {
	switch req.Action {
	case envelope.ActionGetItem:
		value, err := d.backend.Get(req.Key)
		if err != nil {
			return envelope.Error(req, err.Error())
		}
		return envelope.Success(req, value)

	case envelope.ActionSetItem:
		if err := d.backend.Set(req.Key, req.Value); err != nil {
			return envelope.Error(req, err.Error())
		}
		return envelope.Success(req, nil)

	case envelope.ActionRemoveItem:
		if err := d.backend.Remove(req.Key); err != nil {
			return envelope.Error(req, err.Error())
		}
		return envelope.Success(req, nil)

	case envelope.ActionClear:
		if err := d.backend.Clear(); err != nil {
			return envelope.Error(req, err.Error())
		}
		return envelope.Success(req, nil)

	case envelope.ActionLength:
		n, err := d.backend.Count()
		if err != nil {
			return envelope.Error(req, err.Error())
		}
		return envelope.Success(req, n)

	case envelope.ActionKey:
		index, ok := req.Value.(float64) // JSON numbers decode as float64
		if !ok {
			return envelope.Error(req, "key: index must be a number")
		}
		name, found, err := d.backend.KeyAt(int(index))
		if err != nil {
			return envelope.Error(req, err.Error())
		}
		if !found {
			return envelope.Success(req, nil)
		}
		return envelope.Success(req, name)
	}

	// Unreachable when called via Serve (IsRequest is checked first), kept
	// for direct middleware-chain use.
	log.Printf("server: unknown action %q, no response", req.Action)
	return nil
}
