package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/handshake"
)

// upgradedPair returns both ends of one WebSocket connection.
func upgradedPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(ts.Close)

	clientSide, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = clientSide.Close() })

	select {
	case serverSide = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() { _ = serverSide.Close() })
	return serverSide, clientSide
}

func testConn(ws *websocket.Conn, pongWait time.Duration) *conn {
	return newConn(ws, &handshake.Context{}, "test", connOptions{
		maxMessageBytes: 1024,
		sendBuffer:      4,
		writeWait:       time.Second,
		pongWait:        pongWait,
	})
}

func TestPingPeriod(t *testing.T) {
	tests := []struct {
		pongWait time.Duration
		want     time.Duration
	}{
		{60 * time.Second, 54 * time.Second},
		{100 * time.Millisecond, 90 * time.Millisecond},
		{time.Nanosecond, time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.pongWait.String(), func(t *testing.T) {
			if got := (connOptions{pongWait: tt.pongWait}).pingPeriod(); got != tt.want {
				t.Errorf("pingPeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWritePumpPings(t *testing.T) {
	serverSide, clientSide := upgradedPair(t)
	c := testConn(serverSide, 100*time.Millisecond)
	defer func() {
		c.Terminate()
		<-c.writerDone
	}()

	pinged := make(chan struct{}, 1)
	clientSide.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := clientSide.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go c.writePump()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping from an idle connection")
	}
}

func TestWritePumpStopsAfterFailedWrite(t *testing.T) {
	serverSide, _ := upgradedPair(t)
	c := testConn(serverSide, time.Minute)

	for _, msg := range []string{"one", "two", "three"} {
		if err := c.SendText(msg); err != nil {
			t.Fatalf("SendText(%q) error = %v", msg, err)
		}
	}

	// Break the socket underneath the connection
	_ = serverSide.Close()
	go c.writePump()

	select {
	case <-c.writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writePump did not return")
	}

	if !c.isClosed() {
		t.Error("failed write should terminate the connection")
	}
	if n := len(c.send); n != 2 {
		t.Errorf("%d messages left queued, want 2 (no writes after the failure)", n)
	}
	if err := c.SendText("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("SendText() after failure error = %v, want ErrConnectionClosed", err)
	}
}
