// Package relay turns decoded WebSocket frames into relay actions and keeps
// the registry in step with connection lifecycles.
//
// The Dispatcher handles one frame at a time for one connection:
//   - Close: answer the close handshake with the same payload, then stop
//   - Ping: reply with a Pong carrying the same payload
//   - Pong: nothing
//   - Text: annotate and broadcast to every registered connection, sender
//     included
//   - Other: ErrUnsupportedFrame (closes the connection under PolicyClose)
//
// Annotated messages look like:
//
//	Sun Oct 18 05:51:00 UTC 2026 6f1c... ==========>>>> hi
//
// Hooks registers a connection once it is upgraded, unregisters it when it
// closes, and terminates it on an unrecoverable fault.
package relay
