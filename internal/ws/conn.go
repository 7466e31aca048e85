package ws

import (
	"sync"
	"time"
)

const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10

	sendBufferSize = 256
)

// Conn is the registry's view of one live connection: identity plus a
// buffered outbound channel drained by the connection's write pump.
type Conn struct {
	ID     string
	UserID uint
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewConn(id string, userID uint) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Push queues data without ever blocking the caller. A connection with a
// full buffer drops the event; delivery is best-effort per target.
func (c *Conn) Push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
