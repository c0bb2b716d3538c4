package transport

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"kvbridge/origin"
)

// wsConn adapts a gorilla WebSocket connection to the Conn contract.
// Every inbound message is tagged with a fixed origin: the dialed server's
// origin on the client side, the HTTP Origin header on the server side.
type wsConn struct {
	ws     *websocket.Conn
	origin string // origin stamped on inbound messages
	inbox  chan Message

	writeMu sync.Mutex // gorilla allows one concurrent writer only
	closed  bool       // guarded by writeMu

	once sync.Once
}

// Dial connects to a hub's WebSocket endpoint. The remoteAddress scheme may
// be http(s) or ws(s); http is rewritten to ws the way browsers never have
// to. localOrigin, when non-empty, is sent as the Origin header so the hub
// can validate this client's trust boundary.
//
// Inbound messages are tagged with origin.FromAddress(remoteAddress) — the
// same derivation a channel pins at setup, so the two always agree. On the
// client side the pipe is point-to-point and the only possible sender is the
// dialed endpoint.
func Dial(remoteAddress, localOrigin string) (Conn, error) {
	remoteOrigin, err := origin.FromAddress(remoteAddress)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(remoteAddress)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)

	header := http.Header{}
	if localOrigin != "" {
		header.Set("Origin", localOrigin)
	}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		ws:     ws,
		origin: remoteOrigin,
		inbox:  make(chan Message, pipeInboxSize),
	}
	go c.readLoop()
	return c, nil
}

// Handler returns an http.Handler that upgrades each request to a WebSocket
// and hands the resulting Conn to accept. Inbound messages on that Conn are
// tagged with the request's Origin header; origin enforcement is the
// dispatcher's job, so the upgrader itself accepts everyone.
func Handler(accept func(Conn)) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		declared := r.Header.Get("Origin")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return // Upgrade already wrote the HTTP error
		}
		c := &wsConn{
			ws:     ws,
			origin: declared,
			inbox:  make(chan Message, pipeInboxSize),
		}
		go c.readLoop()
		accept(c)
	})
}

// readLoop reads text messages sequentially (a WebSocket permits one reader)
// and feeds the inbox until the connection breaks, then closes the inbox so
// the consumer's range loop terminates.
func (c *wsConn) readLoop() {
	defer c.once.Do(func() { close(c.inbox) })
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue // the protocol is text-only; ignore binary frames
		}
		c.inbox <- Message{Origin: c.origin, Data: string(data)}
	}
}

func (c *wsConn) Send(data string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

func (c *wsConn) Recv() <-chan Message {
	return c.inbox
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	c.writeMu.Unlock()

	// Closing the socket unblocks readLoop, which closes the inbox.
	return c.ws.Close()
}
