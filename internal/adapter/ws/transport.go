package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("websocket connection closed")
	// ErrSlowConsumer is returned when a connection's send queue is full.
	// The connection is closed.
	ErrSlowConsumer = errors.New("websocket send queue full")
)

// conn is the session transport for one WebSocket. Sends are queued and
// written by a single writer goroutine, so frames leave in the order they
// were queued.
type conn struct {
	ws           *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	code   websocket.StatusCode
	reason string
	done   chan struct{}
}

func newConn(ws *websocket.Conn, queue int, writeTimeout time.Duration) *conn {
	return &conn{
		ws:           ws,
		send:         make(chan []byte, queue),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Send queues data without blocking. A full queue closes the connection.
func (c *conn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked(websocket.StatusPolicyViolation, "slow consumer")
		return ErrSlowConsumer
	}
}

// Close asks the writer to close the connection normally.
func (c *conn) Close() error {
	c.closeWith(websocket.StatusNormalClosure, "")
	return nil
}

func (c *conn) closeWith(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(code, reason)
}

// closeLocked must be called with c.mu held.
func (c *conn) closeLocked(code websocket.StatusCode, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
	close(c.done)
}

// writeLoop drains the send queue until the connection is closed. Frames
// still queued at close time are discarded.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			c.mu.Lock()
			code, reason := c.code, c.reason
			c.mu.Unlock()
			if code == websocket.StatusPolicyViolation {
				slog.Warn("closing slow websocket consumer")
			}
			_ = c.ws.Close(code, reason)
			return
		case <-ctx.Done():
			_ = c.ws.CloseNow()
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				c.closeWith(websocket.StatusInternalError, "write failed")
				_ = c.ws.CloseNow()
				return
			}
		}
	}
}

// pingLoop keeps the connection alive and detects dead peers.
func (c *conn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				slog.Debug("websocket ping failed", "error", err)
				c.closeWith(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
