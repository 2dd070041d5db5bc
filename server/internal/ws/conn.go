package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthnet/hearth/server/internal/registry"
)

// writeTimeout is the deadline for a single write to a client.
const writeTimeout = 10 * time.Second

var errClosed = errors.New("ws: connection closed")

// conn adapts a gorilla connection to registry.Transport.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	ping chan struct{}
	done chan struct{}

	open      atomic.Bool
	closeOnce sync.Once
}

var _ registry.Transport = (*conn)(nil)

func newConn(ws *websocket.Conn, buffer int) *conn {
	c := &conn{
		ws:   ws,
		send: make(chan []byte, buffer),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *conn) Open() bool { return c.open.Load() }

// Send enqueues frame without blocking.
func (c *conn) Send(frame []byte) error {
	if !c.open.Load() {
		return errClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClosed
	default:
		return registry.ErrQueueFull
	}
}

// Ping asks the writer for a ping frame. A ping already pending is enough.
func (c *conn) Ping() error {
	if !c.open.Load() {
		return errClosed
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the writer, which sends a close frame and drops the socket.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
	return nil
}

// writePump drains the send queue and forwards ping requests. Runs in its own
// goroutine per connection.
func (c *conn) writePump() {
	defer func() {
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.ping:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump delivers inbound frames to onFrame and pongs to onPong until the
// connection fails. pongWait > 0 arms a read deadline that any frame or pong
// pushes forward. Blocks until the connection closes.
func (c *conn) readPump(limit int64, pongWait time.Duration, onFrame func([]byte), onPong func()) {
	defer c.Close()

	c.ws.SetReadLimit(limit)
	extend := func() {
		if pongWait > 0 {
			c.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		onPong()
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		extend()
		onFrame(msg)
	}
}
