package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/client"
	"github.com/muurk/wsrelay/internal/config"
	"github.com/muurk/wsrelay/internal/relay"
)

type testServer struct {
	srv   *Server
	ts    *httptest.Server
	wsURL string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.LogLevel = "error"
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return &testServer{
		srv:   srv,
		ts:    ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Server.Path,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// dialRegistered connects and returns the client with the connection ID the
// server assigned to it.
func (s *testServer) dialRegistered(t *testing.T) (*client.Client, string) {
	t.Helper()

	before := map[string]bool{}
	for _, id := range s.srv.Registry().IDs() {
		before[id] = true
	}

	c, err := client.Dial(context.Background(), s.wsURL)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	var id string
	waitFor(t, "registration", func() bool {
		for _, candidate := range s.srv.Registry().IDs() {
			if !before[candidate] {
				id = candidate
				return true
			}
		}
		return false
	})
	return c, id
}

func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func receive(t *testing.T, c *client.Client) string {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if !ok {
			t.Fatalf("connection closed: %v", c.Err())
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ""
}

func expectNoMessage(t *testing.T, c *client.Client) {
	t.Helper()
	select {
	case msg := <-c.Messages():
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTextBroadcast(t *testing.T) {
	s := newTestServer(t, nil)

	a, aID := s.dialRegistered(t)
	b, _ := s.dialRegistered(t)

	if err := a.Send("hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	for name, c := range map[string]*client.Client{"A": a, "B": b} {
		msg := receive(t, c)
		if !strings.Contains(msg, "hi") || !strings.Contains(msg, relay.Separator) {
			t.Errorf("%s received %q", name, msg)
		}

		parsed, err := relay.ParseMessage(msg)
		if err != nil {
			t.Fatalf("%s: ParseMessage() error = %v", name, err)
		}
		if parsed.Sender != aID {
			t.Errorf("%s: sender = %q, want %q", name, parsed.Sender, aID)
		}
		if parsed.Text != "hi" {
			t.Errorf("%s: text = %q, want hi", name, parsed.Text)
		}
		if time.Since(parsed.Time) > time.Minute {
			t.Errorf("%s: timestamp %v is not recent", name, parsed.Time)
		}

		expectNoMessage(t, c)
	}
}

func TestPingPong(t *testing.T) {
	s := newTestServer(t, nil)

	a, _ := s.dialRegistered(t)
	b, _ := s.dialRegistered(t)

	if err := a.Ping([]byte("P")); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	select {
	case payload := <-a.Pongs():
		if string(payload) != "P" {
			t.Errorf("pong payload = %q, want P", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}

	select {
	case payload := <-a.Pongs():
		t.Errorf("unexpected second pong %q", payload)
	case <-time.After(100 * time.Millisecond):
	}

	expectNoMessage(t, a)
	expectNoMessage(t, b)
	if s.srv.Registry().Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.srv.Registry().Len())
	}
}

func TestCloseScenario(t *testing.T) {
	s := newTestServer(t, nil)

	a := dialRaw(t, s.wsURL)
	waitFor(t, "A registration", func() bool { return s.srv.Registry().Len() == 1 })
	aID := s.srv.Registry().IDs()[0]

	b, bID := s.dialRegistered(t)

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := a.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		t.Fatalf("WriteMessage(close) error = %v", err)
	}

	// The server echoes the close payload unchanged
	_, _, err := a.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("ReadMessage() error = %v, want close error", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure || closeErr.Text != "bye" {
		t.Errorf("close = %d %q, want 1000 \"bye\"", closeErr.Code, closeErr.Text)
	}

	waitFor(t, "A unregistered", func() bool { return !s.srv.Registry().Has(aID) })
	if !s.srv.Registry().Has(bID) {
		t.Fatal("B should remain registered")
	}

	if err := b.Send("still here"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg := receive(t, b); !strings.HasSuffix(msg, "still here") {
		t.Errorf("B received %q", msg)
	}
	waitFor(t, "active connections", func() bool { return s.srv.GetActiveConnections() == 1 })
}

func TestUnsupportedFrameClosesConnection(t *testing.T) {
	s := newTestServer(t, nil)

	a := dialRaw(t, s.wsURL)
	waitFor(t, "A registration", func() bool { return s.srv.Registry().Len() == 1 })
	aID := s.srv.Registry().IDs()[0]
	b, bID := s.dialRegistered(t)

	if err := a.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteMessage(binary) error = %v", err)
	}

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Fatal("connection should be closed after a binary frame")
	} else if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected abrupt close, got %v", err)
	}

	waitFor(t, "A unregistered", func() bool { return !s.srv.Registry().Has(aID) })
	if !s.srv.Registry().Has(bID) {
		t.Error("B should remain registered")
	}
	if err := b.Send("ok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	receive(t, b)
}

func TestUnsupportedFrameIgnored(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Relay.UnsupportedFrames = "ignore"
	})

	a := dialRaw(t, s.wsURL)
	waitFor(t, "registration", func() bool { return s.srv.Registry().Len() == 1 })

	if err := a.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("WriteMessage(binary) error = %v", err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte("after")); err != nil {
		t.Fatalf("WriteMessage(text) error = %v", err)
	}

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if messageType != websocket.TextMessage || !strings.HasSuffix(string(data), "after") {
		t.Errorf("received %d %q", messageType, data)
	}
}

func TestRejectMissingUpgradeHeader(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.ts.URL + "/websocket")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !resp.Close {
		t.Error("connection should be closed after the rejection")
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Upgrade header") {
		t.Errorf("body = %q, want failure reason", body)
	}
	if s.srv.Registry().Len() != 0 || s.srv.GetActiveConnections() != 0 {
		t.Error("rejected request must not register a connection")
	}
}

func TestRejectWrongPath(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := client.Dial(context.Background(), "ws"+strings.TrimPrefix(s.ts.URL, "http")+"/chat")
	var hsErr *client.HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Dial() error = %v, want HandshakeError", err)
	}
	if hsErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", hsErr.Status)
	}
	if !strings.Contains(hsErr.Body, "path") {
		t.Errorf("body = %q, want path mismatch reason", hsErr.Body)
	}
}

func TestRejectUnsupportedVersion(t *testing.T) {
	s := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/websocket", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Sec-WebSocket-Version", "8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
	if got := resp.Header.Get("Sec-WebSocket-Version"); got != "13" {
		t.Errorf("Sec-WebSocket-Version = %q, want 13", got)
	}
}

func TestUpgradeResponseAccept(t *testing.T) {
	s := newTestServer(t, nil)

	ws, resp, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", resp.StatusCode)
	}
	if resp.Header.Get("Sec-WebSocket-Accept") == "" {
		t.Error("missing Sec-WebSocket-Accept")
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	s := newTestServer(t, nil)
	a, _ := s.dialRegistered(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed by shutdown")
	}
	if !websocket.IsCloseError(a.Err(), websocket.CloseGoingAway) {
		t.Errorf("close error = %v, want 1001", a.Err())
	}
	if s.srv.Registry().Len() != 0 {
		t.Errorf("Len() = %d after shutdown, want 0", s.srv.Registry().Len())
	}
	if s.srv.GetActiveConnections() != 0 {
		t.Errorf("GetActiveConnections() = %d, want 0", s.srv.GetActiveConnections())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Path = "websocket"
	if _, err := New(cfg); err == nil {
		t.Error("New() should reject an invalid config")
	}
}

func TestQuietListenerStaysRegistered(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.PongTimeout = 600 * time.Millisecond
	})

	talker, _ := s.dialRegistered(t)
	listener, listenerID := s.dialRegistered(t)

	// The listener never writes; server pings keep it alive well past the
	// read deadline
	const ticks = 14
	for i := 0; i < ticks; i++ {
		if err := talker.Send("tick"); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	for i := 0; i < ticks; i++ {
		if msg := receive(t, listener); !strings.HasSuffix(msg, "tick") {
			t.Fatalf("listener received %q", msg)
		}
	}

	if !s.srv.Registry().Has(listenerID) {
		t.Error("quiet listener was unregistered")
	}
	if err := listener.Err(); err != nil {
		t.Errorf("listener connection ended: %v", err)
	}
}

func TestConnectionRefusedAfterShutdown(t *testing.T) {
	s := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// The test server still routes requests to the handler
	c, err := client.Dial(context.Background(), s.wsURL)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("late connection was not closed")
	}
	if !websocket.IsCloseError(c.Err(), websocket.CloseGoingAway) {
		t.Errorf("close error = %v, want 1001", c.Err())
	}
	if s.srv.Registry().Len() != 0 || s.srv.GetActiveConnections() != 0 {
		t.Error("connection accepted after shutdown must not be tracked")
	}
}
