package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

// Connection is a subscriber backed by a bounded outbound channel.
// The broker sends on the event loop; a transport goroutine drains Records.
type Connection struct {
	id          string
	connectedAt time.Time

	mu       sync.Mutex
	outbound chan *record.Record
	closed   bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewConnection creates a connection with a random ID
func NewConnection(buffer int) *Connection {
	return NewConnectionWithID(uuid.NewString(), buffer)
}

// NewConnectionWithID creates a connection with the given ID
func NewConnectionWithID(id string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Connection{
		id:          id,
		connectedAt: time.Now(),
		outbound:    make(chan *record.Record, buffer),
	}
}

// ID returns the unique identifier for this connection
func (c *Connection) ID() string {
	return c.id
}

// ConnectedAt returns when this connection was created
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// Send enqueues rec without blocking. It returns false if the buffer is
// full or the connection is closed.
func (c *Connection) Send(rec *record.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.outbound <- rec:
		c.delivered.Add(1)
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Records returns the channel the transport drains. It is closed by Close.
func (c *Connection) Records() <-chan *record.Record {
	return c.outbound
}

// Delivered returns how many records were enqueued
func (c *Connection) Delivered() int64 {
	return c.delivered.Load()
}

// Dropped returns how many records were dropped because the buffer was full
func (c *Connection) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the outbound channel. Records already buffered can still be
// drained. Close is idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
}

// Verify that Connection implements subscription.Subscriber at compile time
var _ subscription.Subscriber = (*Connection)(nil)
