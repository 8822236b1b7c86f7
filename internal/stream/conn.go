package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/real-kijmoshi/Skiing-v2/internal/relay"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// socket is the part of *websocket.Conn the pumps use.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is one live WebSocket client. Writes are queued and drained by
// writePump; Send never blocks the caller.
type Conn struct {
	id        string
	ws        socket
	send      chan []byte
	writeWait time.Duration

	done      chan struct{}
	closeOnce sync.Once
	written   chan struct{}
}

func newConn(id string, ws socket, buffer int, writeWait time.Duration) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &Conn{
		id:        id,
		ws:        ws,
		send:      make(chan []byte, buffer),
		writeWait: writeWait,
		done:      make(chan struct{}),
		written:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return relay.ErrConnUnwritable
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", relay.ErrConnUnwritable)
	}
}

// shutdown marks the connection unwritable and stops writePump.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) readPump(handle func(payload []byte)) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}
		handle(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.written)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// fail unblocks readPump after a write error.
func (c *Conn) fail() {
	c.shutdown()
	_ = c.ws.Close()
}
