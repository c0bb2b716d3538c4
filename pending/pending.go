// Package pending tracks in-flight requests awaiting their response.
//
// Registry is the map from correlation ref to the caller's completion
// handler. Each channel owns one Registry and hands it to its transport
// listener — there is no process-global state, so two channels can never
// misdeliver each other's responses even with colliding refs.
//
//	caller ──Register(ref, handler)──→ [ref → handler]
//	listener ──Resolve(ref, …)──────→ handler invoked once, entry removed
package pending

import (
	"errors"
	"log"
	"sync"
)

// Handler is a completion callback. Exactly one of err and value is
// meaningful: err is non-nil on failure, value carries the result on success
// (nil when the operation has no result or the key is absent).
type Handler func(err error, value any)

// Registry holds the pending calls of a single channel.
//
// Entries self-remove on resolution. Unresolved entries are abandoned when
// the owning channel is destroyed — refs are single-use, so a stale entry can
// never be matched by a later request's response.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores the handler for a ref. The ref must not already be pending;
// a collision would misdeliver a response, so the older handler is kept and
// the collision is logged rather than silently overwritten.
func (r *Registry) Register(ref string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[ref]; exists {
		log.Printf("pending: duplicate ref %q, keeping earlier handler", ref)
		return
	}
	r.handlers[ref] = h
}

// Resolve looks up and removes the handler for ref, then invokes it with
// (err, value) derived from the response: a non-empty errMsg becomes the
// handler's error argument.
//
// An unknown ref is a logged no-op returning false. This legitimately happens
// for a duplicate response (the first one already resolved the entry) or a
// response to a request that was issued without a handler.
func (r *Registry) Resolve(ref, errMsg string, value any) bool {
	r.mu.Lock()
	h, ok := r.handlers[ref]
	if ok {
		delete(r.handlers, ref)
	}
	r.mu.Unlock()

	if !ok {
		log.Printf("pending: no handler registered for ref %q, dropping response", ref)
		return false
	}

	// Invoke outside the lock — the handler may issue follow-up operations
	// that register new refs on this same registry.
	if errMsg != "" {
		h(errors.New(errMsg), nil)
	} else {
		h(nil, value)
	}
	return true
}

// Len returns the number of unresolved pending calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
