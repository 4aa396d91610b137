package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Connection settings
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
	sendBufferSize      = 64
	maxMessageSize      = 64 * 1024
)

// State is the authentication state of one connection.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is one websocket client. A single writer goroutine owns the socket;
// everything else hands it frames through Enqueue.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	log          *logrus.Entry

	state atomic.Int32
	open  atomic.Bool

	mu        sync.Mutex
	principal string
}

func newConn(ws *websocket.Conn, pingInterval time.Duration, log *logrus.Entry) *Conn {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	c := &Conn{
		ws:           ws,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		log:          log,
	}
	c.open.Store(true)
	c.state.Store(int32(StateUnauthenticated))
	return c
}

// Open reports whether the connection still accepts writes.
func (c *Conn) Open() bool {
	return c.open.Load()
}

// Enqueue queues a frame for the writer. Frames are dropped when the
// connection is closed or its buffer is full.
func (c *Conn) Enqueue(data []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("Send buffer full, dropping message")
		return false
	}
}

// State returns the current authentication state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Principal returns the principal bound by the last successful AUTH.
func (c *Conn) Principal() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

func (c *Conn) authenticate(principal string) (previous string) {
	c.mu.Lock()
	previous = c.principal
	c.principal = principal
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(StateUnauthenticated), int32(StateAuthenticated))
	return previous
}

// Close stops the writer and the keep-alive pings and closes the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.ws.Close()
	})
}

// writeLoop drains the send queue and issues pings until the connection closes.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.WithError(err).Debug("Write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
