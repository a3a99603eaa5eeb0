package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/handshake"
	"github.com/muurk/wsrelay/internal/logging"
	"go.uber.org/zap"
)

// handleUpgrade runs the handshake negotiation for one request and, once
// upgraded, serves the WebSocket connection until it closes. It also serves
// every unmatched route so non-matching requests get the same rejection.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	LogHTTPRequestDetails(r, remoteAddr)

	negotiation := s.negotiator.Begin()
	res := negotiation.Handle(r, nil)
	if !res.Upgraded() {
		logging.LogHandshakeRejected(remoteAddr, r.URL.Path, res.Status, res.Err)
		res.Write(w)
		logging.LogHTTPResponse(remoteAddr, res.Status, headerMap(w.Header()))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered through rejectUpgrade
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	logging.LogHTTPResponse(remoteAddr, http.StatusSwitchingProtocols, map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Sec-WebSocket-Accept": negotiation.Context().Accept,
	})

	s.serveConn(newConn(ws, negotiation.Context(), remoteAddr, s.connOpts))
}

// rejectUpgrade answers handshake failures detected by the WebSocket codec
// (method, Connection header, origin) in the same plain-text form as the
// negotiator's rejections.
func rejectUpgrade(w http.ResponseWriter, r *http.Request, status int, reason error) {
	res := handshake.Result{
		State:  handshake.Rejected,
		Status: status,
		Body:   reason.Error(),
		Err:    reason,
	}
	res.Write(w)
	logging.LogHTTPResponse(r.RemoteAddr, res.Status, headerMap(w.Header()))
}

// LogHTTPRequestDetails logs all details of an HTTP request
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headerMap(req.Header))

	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_key", req.Header.Get("Sec-WebSocket-Key")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("sec_websocket_protocol", req.Header.Get("Sec-WebSocket-Protocol")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}

func headerMap(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// No authentication or origin policy: any page may join the relay
		CheckOrigin: func(r *http.Request) bool { return true },
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			rejectUpgrade(w, r, status, fmt.Errorf("websocket: %w", reason))
		},
	}
}
