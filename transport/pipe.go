package transport

import "sync"

// pipeInboxSize bounds how many undelivered messages one end can hold before
// Send blocks. Large enough that event-loop style consumers never hit it.
const pipeInboxSize = 256

// Pipe returns a connected in-process pair. Messages sent on one end arrive
// on the other, tagged with the sending end's origin — the same contract a
// real cross-boundary transport provides, minus the serialization cost.
//
// The first return value tags its outbound messages with clientOrigin, the
// second with serverOrigin.
func Pipe(clientOrigin, serverOrigin string) (Conn, Conn) {
	a := &pipeEnd{origin: clientOrigin, inbox: make(chan Message, pipeInboxSize)}
	b := &pipeEnd{origin: serverOrigin, inbox: make(chan Message, pipeInboxSize)}
	a.peer = b
	b.peer = a
	return a, b
}

type pipeEnd struct {
	origin string // stamped on messages this end sends
	inbox  chan Message
	peer   *pipeEnd

	mu     sync.Mutex // guards closed and inbox teardown
	closed bool
}

func (e *pipeEnd) Send(data string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	// Deliver into the peer's inbox under the peer's lock so a concurrent
	// Close on that end cannot close the channel mid-send.
	p := e.peer
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.inbox <- Message{Origin: e.origin, Data: data}
	return nil
}

func (e *pipeEnd) Recv() <-chan Message {
	return e.inbox
}

func (e *pipeEnd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.inbox)
	return nil
}
