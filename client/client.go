// Package client implements the caller side of a kvbridge channel.
//
// A Channel issues storage operations against a hub it cannot call directly.
// Operations are accepted immediately upon construction: until the hub
// announces readiness they are buffered in arrival order, then replayed;
// afterwards every call sends straight through. Each operation sends exactly
// one envelope and, when a completion handler is supplied, registers exactly
// one pending call that the listener resolves when the matching response
// arrives.
//
//	GetItem("theme", cb) ──ref=ab12-1──→ hub
//	listener ←──{success, ref=ab12-1, value}── hub → cb(nil, "dark")
package client

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"kvbridge/envelope"
	"kvbridge/origin"
	"kvbridge/pending"
	"kvbridge/queue"
	"kvbridge/transport"
)

// Handler is the completion callback for an operation: invoked with a
// non-nil error on failure, otherwise with the operation's result value
// (nil when there is none, or the key is absent).
type Handler = pending.Handler

// ErrClosed is delivered to completion handlers of operations issued after
// Destroy. Post-destruction calls fail fast instead of queuing forever.
var ErrClosed = errors.New("kvbridge: channel closed")

// ErrNeverReady is delivered to buffered operations when the ready timeout
// expires before the hub announces readiness.
var ErrNeverReady = errors.New("kvbridge: channel never became ready")

// Channel is the five-operation handle to a remote hub. One Channel owns one
// transport connection and one pending-call registry; channels never share
// correlation state.
type Channel struct {
	conn    transport.Conn
	origin  string // pinned remote origin, immutable after construction
	pending *pending.Registry
	queue   *queue.Queue

	tag    string // per-channel correlation id prefix
	seq    atomic.Uint64
	closed atomic.Bool
}

type options struct {
	localOrigin  string
	readyTimeout time.Duration
	dialAttempts int
}

// Option configures Open and New.
type Option func(*options)

// WithLocalOrigin sets the origin this client declares to the hub when
// dialing. Hubs configured with a concrete expected origin will silently
// drop requests from clients that do not declare it.
func WithLocalOrigin(o string) Option {
	return func(opts *options) { opts.localOrigin = o }
}

// WithReadyTimeout bounds how long buffered operations wait for the hub's
// readiness announcement. When it expires, every buffered operation's
// handler receives ErrNeverReady. Zero (the default) waits forever.
func WithReadyTimeout(d time.Duration) Option {
	return func(opts *options) { opts.readyTimeout = d }
}

// WithDialAttempts sets how many times Open retries the transport dial
// before giving up. Defaults to 5.
func WithDialAttempts(n int) Option {
	return func(opts *options) { opts.dialAttempts = n }
}

// Open derives the pinned remote origin from remoteAddress, dials the hub's
// WebSocket endpoint (retrying with exponential backoff), and returns the
// operation handle.
func Open(remoteAddress string, opts ...Option) (*Channel, error) {
	o := options{dialAttempts: 5}
	for _, opt := range opts {
		opt(&o)
	}

	remoteOrigin, err := origin.FromAddress(remoteAddress)
	if err != nil {
		return nil, err
	}

	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
	var conn transport.Conn
	for {
		conn, err = transport.Dial(remoteAddress, o.localOrigin)
		if err == nil {
			break
		}
		if int(b.Attempt())+1 >= o.dialAttempts {
			return nil, fmt.Errorf("dial %s: %w", remoteAddress, err)
		}
		time.Sleep(b.Duration())
	}

	return New(conn, remoteOrigin, opts...), nil
}

// New builds a channel over an already-established transport connection,
// pinning remoteOrigin as the only peer whose messages are processed. The
// channel accepts operations immediately; they replay once the hub's ready
// announcement arrives on conn.
func New(conn transport.Conn, remoteOrigin string, opts ...Option) *Channel {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Channel{
		conn:    conn,
		origin:  remoteOrigin,
		pending: pending.New(),
		queue:   queue.New(),
		tag:     newTag(),
	}
	go c.listen()

	if o.readyTimeout > 0 {
		go c.watchReady(o.readyTimeout)
	}
	return c
}

// newTag generates the per-channel correlation id prefix. Refs are
// "<tag>-<counter>": the counter makes uniqueness within a channel
// structural, the tag keeps refs from two channels distinguishable in logs.
func newTag() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// GetItem requests the stored value for key. On success the handler receives
// the value, or nil if the key is absent.
func (c *Channel) GetItem(key string, cb Handler) {
	c.call(envelope.ActionGetItem, key, nil, cb)
}

// SetItem requests storing value under key. The handler receives (nil, nil)
// on success.
func (c *Channel) SetItem(key string, value any, cb Handler) {
	c.call(envelope.ActionSetItem, key, value, cb)
}

// RemoveItem requests deletion of key. Removing an absent key succeeds.
func (c *Channel) RemoveItem(key string, cb Handler) {
	c.call(envelope.ActionRemoveItem, key, nil, cb)
}

// Clear requests removal of all entries.
func (c *Channel) Clear(cb Handler) {
	c.call(envelope.ActionClear, "", nil, cb)
}

// Length requests the entry count. The handler's value is an int.
func (c *Channel) Length(cb Handler) {
	c.call(envelope.ActionLength, "", nil, wrapCount(cb))
}

// Key requests the key name at ordinal index (insertion order). The handler
// receives the name, or nil when index is out of range.
func (c *Channel) Key(index int, cb Handler) {
	c.call(envelope.ActionKey, "", index, cb)
}

// SetItemForget stores value under key without observing the result. No
// pending call is registered and the hub's reply is dropped.
func (c *Channel) SetItemForget(key string, value any) {
	c.fire(envelope.ActionSetItem, key, value)
}

// RemoveItemForget deletes key without observing the result.
func (c *Channel) RemoveItemForget(key string) {
	c.fire(envelope.ActionRemoveItem, key, nil)
}

// ClearForget removes all entries without observing the result.
func (c *Channel) ClearForget() {
	c.fire(envelope.ActionClear, "", nil)
}

// Destroy releases the channel's resources: the transport connection is
// closed, which detaches the listener. Idempotent. In-flight pending calls
// are abandoned, not cancelled — their handlers simply never fire. After
// Destroy, operation handlers receive ErrClosed immediately.
func (c *Channel) Destroy() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.conn.Close()
}

// call is the shared dispatch path for operations with a completion handler.
// A nil handler is tolerated but logged — use the Forget variants to discard
// results on purpose.
func (c *Channel) call(action envelope.Action, key string, value any, cb Handler) {
	if cb == nil {
		log.Printf("client: %s called without completion handler; result will be unobservable", action)
		c.fire(action, key, value)
		return
	}
	if c.closed.Load() {
		go cb(ErrClosed, nil)
		return
	}
	c.queue.Do(string(action),
		func() { c.send(action, key, value, cb) },
		func() { cb(ErrNeverReady, nil) })
}

// fire sends an operation with an empty ref: the hub still replies (uniform
// path), but the listener drops empty-ref responses silently.
func (c *Channel) fire(action envelope.Action, key string, value any) {
	if c.closed.Load() {
		log.Printf("client: %s after Destroy dropped: %v", action, ErrClosed)
		return
	}
	c.queue.Do(string(action),
		func() { c.send(action, key, value, nil) },
		nil)
}

// send serializes and transmits one request envelope. When a handler is
// supplied, the pending call is registered before the envelope is written so
// the response cannot race the registration.
func (c *Channel) send(action envelope.Action, key string, value any, cb Handler) {
	ref := ""
	if cb != nil {
		ref = fmt.Sprintf("%s-%d", c.tag, c.seq.Add(1))
		c.pending.Register(ref, cb)
	}

	env := &envelope.Envelope{Action: action, Ref: ref, Key: key, Value: value}
	data, err := env.Encode()
	if err != nil {
		c.fail(ref, cb, err)
		return
	}
	if err := c.conn.Send(data); err != nil {
		c.fail(ref, cb, err)
	}
}

// fail reports a local send failure to the caller, removing the pending
// entry it would otherwise leak.
func (c *Channel) fail(ref string, cb Handler, err error) {
	if cb == nil {
		log.Printf("client: send failed for fire-and-forget request: %v", err)
		return
	}
	c.pending.Resolve(ref, err.Error(), nil)
}

// listen is the channel's transport listener. It filters inbound messages to
// the pinned remote origin, releases the operation queue on the hub's ready
// announcement, and resolves pending calls from response envelopes. It exits
// when the connection closes.
func (c *Channel) listen() {
	for msg := range c.conn.Recv() {
		if msg.Origin != c.origin {
			// Unrelated peer sharing the event stream — ignored, not an error.
			continue
		}
		env, err := envelope.Decode(msg.Data)
		if err != nil {
			log.Printf("client: dropping malformed message from %s: %v", msg.Origin, err)
			continue
		}
		switch env.Action {
		case envelope.ActionReady:
			c.queue.Release()
		case envelope.ActionSuccess:
			c.resolve(env.Ref, "", env.Value)
		case envelope.ActionError:
			c.resolve(env.Ref, env.Message, nil)
		default:
			log.Printf("client: unexpected action %q from hub, dropping", env.Action)
		}
	}
}

// resolve routes one response to its pending call. Responses with an empty
// ref belong to fire-and-forget requests and are dropped without noise.
func (c *Channel) resolve(ref, errMsg string, value any) {
	if ref == "" {
		return
	}
	c.pending.Resolve(ref, errMsg, value)
}

// watchReady fails buffered operations if readiness never arrives in time.
func (c *Channel) watchReady(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	<-timer.C
	if !c.queue.Ready() {
		log.Printf("client: hub not ready after %s, failing buffered operations", timeout)
		c.queue.Abandon()
	}
}

// wrapCount converts the hub's numeric count (a JSON number, so float64 on
// the wire) to an int before it reaches the caller.
func wrapCount(cb Handler) Handler {
	return func(err error, value any) {
		if f, ok := value.(float64); ok {
			cb(err, int(f))
			return
		}
		cb(err, value)
	}
}
