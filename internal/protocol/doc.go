// Package protocol defines the frame model the relay dispatches on.
//
// Frames arrive from the WebSocket codec already decoded and unmasked. Each one
// is tagged with a Kind so the dispatcher can switch on it exhaustively:
//
//	switch f.Kind {
//	case protocol.KindClose:
//	case protocol.KindPing:
//	case protocol.KindPong:
//	case protocol.KindText:
//	case protocol.KindOther:
//	}
//
// Binary frames and reserved opcodes are KindOther. The relay does not carry
// binary payloads.
package protocol
