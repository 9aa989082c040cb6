package realtime

import "sync"

// sendBufferSize is the outbound queue depth per connection. Dispatch never
// blocks on a slow consumer: a full buffer kills the connection instead.
const sendBufferSize = 32

// Conn is the outbound half of one live connection as the registry sees it.
// The session that created it owns the transport; the registry only holds a
// reference between Register and Unregister.
type Conn struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewConn creates a connection handle with an empty outbound queue.
func NewConn() *Conn {
	return &Conn{
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Outbound is the queue the owning session's write pump drains.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection has been killed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Kill marks the connection dead. Idempotent; safe from any goroutine. The
// owning session observes Done and runs its teardown path.
func (c *Conn) Kill() {
	c.once.Do(func() { close(c.done) })
}

// deliver enqueues a payload without blocking. It reports false when the
// connection is dead or its buffer is full; the caller decides whether that
// kills the connection.
func (c *Conn) deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}
