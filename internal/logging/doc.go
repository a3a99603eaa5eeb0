// Package logging provides structured logging for the wsrelay server and client.
//
// This package wraps a package-level zap logger with convenience functions for
// the logging patterns used throughout the relay: connection lifecycle events,
// HTTP upgrade requests and responses, and WebSocket frames.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Frame-level detail (ping/pong, hex dumps, per-recipient enqueue)
//   - Info: Connection events, upgrades, broadcasts
//   - Warn: Rejected upgrades, dropped recipients
//   - Error: Connection faults, startup failures
//
// # Structured Logging
//
//	logging.Info("Broadcast delivered",
//	    zap.String("conn_id", id),
//	    zap.Int("recipients", n),
//	)
//
// # Configuration
//
// Initialize logging at startup. An empty level falls back to the
// WSRELAY_LOG_LEVEL environment variable; if that is also empty the logger is
// a no-op:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
