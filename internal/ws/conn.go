// Package ws is the websocket edge: it upgrades connections, runs the HELLO
// handshake, and pumps decoded frames into the dispatcher. Each connection
// owns a bounded outbound queue; the game planes never block on a slow
// client.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"triad-arena/server/internal/proto"
)

const (
	writeWait        = 10 * time.Second
	controlQueueSize = 64
)

var ErrSlowConsumer = errors.New("ws: outbound queue overflow")

// Conn wraps one websocket connection. Control messages queue in order and
// are never dropped; an undelivered snapshot is superseded by the next one.
// When the control queue overflows the connection is torn down rather than
// stalling a producer.
type Conn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	control  []any
	snapshot *proto.Snapshot
	closed   bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:   ws,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send queues an outbound message. Safe from any goroutine.
func (c *Conn) Send(message any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSlowConsumer
	}
	switch m := message.(type) {
	case proto.Snapshot:
		c.snapshot = &m
	case *proto.Snapshot:
		c.snapshot = m
	default:
		if len(c.control) >= controlQueueSize {
			c.mu.Unlock()
			c.closeWith(websocket.CloseTryAgainLater, "client too slow")
			return ErrSlowConsumer
		}
		c.control = append(c.control, message)
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close tears the connection down with a normal closure.
func (c *Conn) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

// closeWith sends a close frame with the given code then shuts the socket.
func (c *Conn) closeWith(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		message := websocket.FormatCloseMessage(code, reason)
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage, message)
		c.ws.Close()
		close(c.done)
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			message, ok := c.next()
			if !ok {
				break
			}
			data, err := proto.Encode(message)
			if err != nil {
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// next pops the oldest control message, or the pending snapshot once the
// control queue is drained.
func (c *Conn) next() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.control) > 0 {
		message := c.control[0]
		c.control = c.control[1:]
		return message, true
	}
	if c.snapshot != nil {
		snapshot := c.snapshot
		c.snapshot = nil
		return snapshot, true
	}
	return nil, false
}
