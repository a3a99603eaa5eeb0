// Package client is a small WebSocket client for wsrelay servers.
//
// It is used by the chat command and by end-to-end tests:
//
//	c, err := client.Dial(ctx, "ws://localhost:9988/websocket")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Send("hi")
//	for msg := range c.Messages() {
//	    fmt.Println(msg)
//	}
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/version"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time to wait for the server's close frame after sending ours
	closeWait = time.Second

	messageBuffer = 64
)

// ErrClosed is returned when using a closed client.
var ErrClosed = errors.New("client closed")

// HandshakeError reports a rejected upgrade.
type HandshakeError struct {
	Status int
	Body   string
}

func (e *HandshakeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upgrade rejected: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("upgrade rejected: %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// Client is a connection to a relay.
type Client struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	messages chan string
	pongs    chan []byte
	done     chan struct{}
	closing  chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial connects to the relay at rawURL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{"User-Agent": {version.UserAgent()}}

	ws, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, handshakeError(resp)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", rawURL, err)
	}

	logging.Info("Connected to relay", zap.String("url", rawURL))

	c := &Client{
		ws:       ws,
		messages: make(chan string, messageBuffer),
		pongs:    make(chan []byte, 8),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	ws.SetPongHandler(func(appData string) error {
		select {
		case c.pongs <- []byte(appData):
		default:
		}
		return nil
	})

	go c.readLoop()
	return c, nil
}

func handshakeError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &HandshakeError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.messages <- string(data):
		case <-c.closing:
			// Nobody is reading any more; keep draining until the close
			// handshake completes
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Err returns the error that ended the connection, or nil while it is open.
// A normal close handshake yields a *websocket.CloseError with code 1000.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Messages returns broadcast messages as they arrive. The channel is closed
// when the connection ends.
func (c *Client) Messages() <-chan string {
	return c.messages
}

// Pongs returns the payloads of pong frames received.
func (c *Client) Pongs() <-chan []byte {
	return c.pongs
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send writes a text message.
func (c *Client) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Ping writes a ping control frame.
func (c *Client) Ping(payload []byte) error {
	return c.ws.WriteControl(websocket.PingMessage, payload, time.Now().Add(writeWait))
}

// Close performs the close handshake and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		err = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}

		select {
		case <-c.done:
		case <-time.After(closeWait):
		}

		_ = c.ws.Close()
	})
	return err
}
