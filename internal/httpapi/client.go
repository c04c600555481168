package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

type outbound struct {
	kind int
	data []byte
}

// client is one /ws/chart connection. The hub sees it as a broadcast.Subscriber.
type client struct {
	conn *websocket.Conn
	send chan outbound

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a text frame. A full buffer closes the client and fails the send.
func (c *client) Send(_ context.Context, payload []byte) error {
	return c.enqueue(websocket.TextMessage, payload)
}

func (c *client) enqueue(kind int, data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- outbound{kind: kind, data: data}:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		// A reader that fell behind is cut off; closing conn also unblocks a stalled write.
		_ = c.Close()
		_ = c.conn.Close()
		return errSlowClient
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writeLoop owns all writes to conn and closes it on exit.
func (c *client) writeLoop() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
