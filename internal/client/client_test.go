package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades every request and echoes text frames back.
func echoServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/reject" {
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("missing Upgrade header\n"))
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()

		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestSendAndReceive(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t)+"/websocket")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Send("hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-c.Messages():
		if msg != "hello" {
			t.Errorf("received %q, want hello", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestPingReceivesPong(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t)+"/websocket")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Ping([]byte("P")); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	select {
	case payload := <-c.Pongs():
		if string(payload) != "P" {
			t.Errorf("pong payload = %q, want P", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestCloseHandshake(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t)+"/websocket")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Close")
	}

	if !websocket.IsCloseError(c.Err(), websocket.CloseNormalClosure) {
		t.Errorf("Err() = %v, want normal closure", c.Err())
	}
	if err := c.Send("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDialRejected(t *testing.T) {
	_, err := Dial(context.Background(), echoServer(t)+"/reject")

	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Dial() error = %v, want HandshakeError", err)
	}
	if hsErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", hsErr.Status)
	}
	if hsErr.Body != "missing Upgrade header" {
		t.Errorf("Body = %q", hsErr.Body)
	}
	if !strings.Contains(hsErr.Error(), "400 Bad Request") {
		t.Errorf("Error() = %q", hsErr.Error())
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/websocket")
	if err == nil {
		t.Fatal("Dial() should fail for an unreachable server")
	}
	var hsErr *HandshakeError
	if errors.As(err, &hsErr) {
		t.Errorf("unexpected HandshakeError for a dial failure: %v", err)
	}
}
