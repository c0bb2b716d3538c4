// Package transport provides the message pipe between channel endpoints.
//
// The channel core only needs a bidirectional, origin-tagged, string-message
// pipe: each inbound message arrives with the origin its sender declared, and
// Send pushes one serialized envelope to the peer. Two implementations are
// provided — an in-process Pipe for tests and same-process embedding, and a
// WebSocket transport for crossing real process boundaries.
package transport

import "errors"

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Message is one inbound unit: a single serialized envelope string tagged
// with the sender's declared origin.
type Message struct {
	Origin string
	Data   string
}

// Conn is one end of a bidirectional message pipe.
//
// Recv returns the same channel on every call; it is closed when the
// connection closes, which is how listeners learn the pipe is gone. Send
// never blocks on the peer's processing.
type Conn interface {
	Send(data string) error
	Recv() <-chan Message
	Close() error
}
