// Package queue buffers client operations until the remote endpoint is ready.
//
// A Queue starts NotReady. Every operation dispatched through it is buffered
// in arrival order and runs the moment Release is called. The transition is
// one-way: after Release the buffer is gone for good and later operations run
// immediately, never touching the queue again.
package queue

import "sync"

type entry struct {
	name     string
	dispatch func()
	abort    func()
}

// Queue is the NotReady → Ready gate in front of a channel's send path.
type Queue struct {
	mu      sync.Mutex
	ready   bool
	entries []entry
}

// New creates a queue in the NotReady state.
func New() *Queue {
	return &Queue{}
}

// Do runs dispatch immediately if the queue is Ready, otherwise buffers it.
// abort is kept alongside the buffered dispatch and runs instead of it if
// the queue is abandoned; it may be nil. The name is for diagnostics only.
//
// Buffering is fire-and-forget from the caller's perspective: Do returns
// without any indication that the operation was deferred.
func (q *Queue) Do(name string, dispatch, abort func()) {
	q.mu.Lock()
	if !q.ready {
		q.entries = append(q.entries, entry{name: name, dispatch: dispatch, abort: abort})
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	dispatch()
}

// Release transitions to Ready and drains the buffer strictly in arrival
// order, each entry dispatched exactly as if called directly. Safe to call
// more than once; only the first call has any effect.
//
// The ready flag and the buffer snapshot are taken in one critical section,
// so an operation issued concurrently with Release either lands in the
// snapshot (and drains in order) or observes Ready and runs after the drain
// began — it can never be lost.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.ready {
		q.mu.Unlock()
		return
	}
	q.ready = true
	drained := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range drained {
		e.dispatch()
	}
}

// Abandon discards the buffer without becoming Ready, running each buffered
// operation's abort (when set) in arrival order. Used when the transport is
// declared dead so buffered operations fail visibly instead of starving. A
// later Release is still possible but will find nothing to drain.
func (q *Queue) Abandon() {
	q.mu.Lock()
	drained := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range drained {
		if e.abort != nil {
			e.abort()
		}
	}
}

// Ready reports whether the queue has been released.
func (q *Queue) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Pending returns the number of buffered operations.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
