// Package handshake decides whether an HTTP request may be upgraded to a
// WebSocket connection.
//
// Each accepted connection owns one Negotiation, a small state machine:
//
//	AwaitingRequest -> Validating -> Upgraded
//	                              -> Rejected
//
// Validation checks, in order:
//  1. the request decoded without errors
//  2. the Upgrade header is "websocket" (case-insensitive)
//  3. the request targets the configured endpoint path
//  4. Sec-WebSocket-Version is 13, otherwise 426 Upgrade Required
//  5. Sec-WebSocket-Key is present
//
// Failures are returned as Result values carrying the HTTP status, headers
// and a plain-text body, never as panics. The caller writes the result and
// closes the connection:
//
//	n := negotiator.Begin()
//	res := n.Handle(req, nil)
//	if !res.Upgraded() {
//	    res.Write(w)
//	    return
//	}
//
// A successful Result carries the Context that is retained for the lifetime
// of the connection so the close handshake can be answered later.
package handshake
