package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/handshake"
	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/protocol"
	"github.com/muurk/wsrelay/internal/relay"
	"go.uber.org/zap"
)

var (
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a recipient's outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)

// connOptions are the per-connection transport limits.
type connOptions struct {
	maxMessageBytes int64
	sendBuffer      int
	writeWait       time.Duration
	pongWait        time.Duration
}

// conn is one upgraded WebSocket connection. A single goroutine reads and
// dispatches frames; another drains the send queue.
type conn struct {
	id        string
	label     string
	ws        *websocket.Conn
	handshake *handshake.Context
	opts      connOptions

	// mu guards closed and the close of send; senders hold the read lock for
	// their non-blocking enqueue.
	mu     sync.RWMutex
	closed bool
	send   chan string

	closeOnce  sync.Once
	writerDone chan struct{}
}

func newConn(ws *websocket.Conn, hs *handshake.Context, label string, opts connOptions) *conn {
	return &conn{
		id:         uuid.NewString(),
		label:      label,
		ws:         ws,
		handshake:  hs,
		opts:       opts,
		send:       make(chan string, opts.sendBuffer),
		writerDone: make(chan struct{}),
	}
}

// ID implements registry.Conn
func (c *conn) ID() string { return c.id }

// Label implements registry.Conn
func (c *conn) Label() string { return c.label }

// SendText queues msg without blocking.
func (c *conn) SendText(msg string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendPong writes a pong control frame.
func (c *conn) SendPong(payload []byte) error {
	err := c.ws.WriteControl(websocket.PongMessage, payload, time.Now().Add(c.opts.writeWait))
	if err == nil {
		logging.LogFrame(c.id, "sent", protocol.OpcodePong, payload)
		return nil
	}
	// Same tolerance as gorilla's default ping handler
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	if isTimeout(err) {
		return nil
	}
	return err
}

// CloseHandshake echoes a close frame with payload and closes the
// connection.
func (c *conn) CloseHandshake(payload []byte) error {
	err := c.ws.WriteControl(websocket.CloseMessage, payload, time.Now().Add(c.opts.writeWait))
	c.Terminate()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	logging.LogFrame(c.id, "sent", protocol.OpcodeClose, payload)
	return nil
}

// closeWith starts a server-initiated close handshake.
func (c *conn) closeWith(code int, text string) {
	_ = c.CloseHandshake(websocket.FormatCloseMessage(code, text))
}

// Terminate closes the connection immediately. Safe to call more than once.
func (c *conn) Terminate() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		_ = c.ws.Close()
	})
}

func (c *conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *conn) refreshReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
}

// pingPeriod is how often the server pings an otherwise quiet peer. It is
// shorter than pongWait so a live peer's pong always arrives in time.
func (o connOptions) pingPeriod() time.Duration {
	if p := o.pongWait * 9 / 10; p > 0 {
		return p
	}
	return o.pongWait
}

// writePump delivers queued text messages in order and pings the peer every
// pingPeriod. It returns after the first failed write or once the queue is
// closed; messages still queued at that point are not written.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeText(msg); err != nil {
				c.writeFailed(err)
				return
			}
			logging.LogFrame(c.id, "sent", protocol.OpcodeText, []byte(msg))

		case <-ticker.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.writeWait))
			if err != nil {
				c.writeFailed(err)
				return
			}
			logging.LogFrame(c.id, "sent", protocol.OpcodePing, nil)
		}
	}
}

func (c *conn) writeText(msg string) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *conn) writeFailed(err error) {
	if !c.isClosed() {
		logging.Info("Write failed, closing connection",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
			zap.Error(err),
		)
	}
	c.Terminate()
}

// readLoop reads frames in receipt order and hands each to the dispatcher.
// It returns when the connection ends for any reason.
func (c *conn) readLoop(d *relay.Dispatcher, hooks *relay.Hooks) {
	defer func() {
		if r := recover(); r != nil {
			hooks.OnFault(c, fmt.Errorf("panic in read loop: %v", r))
		}
	}()

	c.ws.SetReadLimit(c.opts.maxMessageBytes)
	c.refreshReadDeadline()

	c.ws.SetPingHandler(func(appData string) error {
		c.refreshReadDeadline()
		logging.LogFrame(c.id, "received", protocol.OpcodePing, []byte(appData))
		return d.Dispatch(c, protocol.Ping([]byte(appData)))
	})
	c.ws.SetPongHandler(func(appData string) error {
		c.refreshReadDeadline()
		logging.LogFrame(c.id, "received", protocol.OpcodePong, []byte(appData))
		return d.Dispatch(c, protocol.Pong([]byte(appData)))
	})
	c.ws.SetCloseHandler(func(code int, text string) error {
		payload := websocket.FormatCloseMessage(code, text)
		logging.LogFrame(c.id, "received", protocol.OpcodeClose, payload)
		return d.Dispatch(c, protocol.Close(payload))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err, hooks)
			return
		}

		c.refreshReadDeadline()
		logging.LogFrame(c.id, "received", messageType, data)

		frame := protocol.NewFrame(messageType, data)
		if err := d.Dispatch(c, frame); err != nil {
			if errors.Is(err, relay.ErrClosed) {
				return
			}
			hooks.OnFault(c, err)
			return
		}
	}
}

func (c *conn) handleReadError(err error, hooks *relay.Hooks) {
	switch {
	case errors.Is(err, relay.ErrClosed):
		logging.Info("Connection closed by peer",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
		)
	case c.isClosed():
		// Terminated locally (fault, shutdown or write failure)
	case isTimeout(err):
		logging.Info("Connection idle timeout",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
			zap.Duration("pong_wait", c.opts.pongWait),
		)
		c.Terminate()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure):
		logging.Info("Connection dropped without close handshake",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
		)
	default:
		hooks.OnFault(c, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
