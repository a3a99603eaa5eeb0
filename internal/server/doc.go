// Package server implements the wsrelay WebSocket chat relay.
//
// The server accepts HTTP requests on the configured endpoint, runs the
// upgrade negotiation, and relays text messages from every upgraded
// connection to all registered connections, sender included.
//
// # Connection Lifecycle
//
//  1. A TCP connection is accepted (logged, never registered)
//  2. The HTTP request is negotiated; failures get a plain-text 400 or 426
//  3. After the 101 response the connection is registered
//  4. Frames are read and dispatched in order
//  5. On close, fault or shutdown the connection is unregistered
//
// A closed or broken connection never affects the others.
//
// # Usage Example
//
//	cfg := config.Default()
//	cfg.Server.Port = 9988
//
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until shutdown signal or error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// For tests, Handler can be mounted on an httptest.Server instead.
//
// # Logging
//
// The server provides structured logging with different levels:
//   - debug: frame contents, hex dumps, ping/pong traffic
//   - info: connections, upgrades, closes
//   - warn: skipped broadcast recipients, unsupported frames
//   - error: connection faults
package server
