package live

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	// ErrChannelClosed is returned when enqueueing on a closed channel.
	ErrChannelClosed = errors.New("live channel closed")
	// ErrBufferOverflow is returned when a subscriber cannot keep up; the
	// channel is disconnected rather than blocking the broadcaster.
	ErrBufferOverflow = errors.New("live channel buffer overflow")
)

// Conn is the minimal websocket surface the channel writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const textMessage = 1

// Channel wraps one party's websocket connection with a bounded outbound
// queue drained by a single writer goroutine, so concurrent broadcasts
// never interleave frames or block on a slow subscriber.
type Channel struct {
	conn         Conn
	outbound     chan []byte
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

// NewChannel creates a channel and starts its writer goroutine.
func NewChannel(conn Conn, bufferSize int, writeTimeout time.Duration) *Channel {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	c := &Channel{
		conn:         conn,
		outbound:     make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Channel) writeLoop() {
	for {
		select {
		case data := <-c.outbound:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(textMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send marshals the payload and enqueues it without blocking. A full
// buffer disconnects the subscriber; persisted messages stay retrievable
// through history replay on reconnect.
func (c *Channel) Send(v any) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		c.Close()
		return ErrBufferOverflow
	}
}

// Close shuts down the writer goroutine and the underlying connection.
// Safe to call multiple times and from any goroutine.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Closed reports whether the channel has been shut down.
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
