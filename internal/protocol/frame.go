package protocol

import (
	"fmt"
)

// WebSocket frame opcodes (RFC 6455 section 5.2). The values match
// gorilla/websocket's message type constants.
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// Kind classifies an inbound frame for dispatch.
type Kind int

const (
	// KindOther covers every frame the relay does not handle (binary,
	// reserved opcodes).
	KindOther Kind = iota
	KindClose
	KindPing
	KindPong
	KindText
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindText:
		return "text"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one inbound WebSocket unit after decoding.
// Payload is the application data for ping, text and close frames (for close
// frames it is the raw status code + reason body).
type Frame struct {
	Kind    Kind
	Opcode  int
	Payload []byte
}

// KindForOpcode maps an RFC 6455 opcode to its dispatch kind.
func KindForOpcode(opcode int) Kind {
	switch opcode {
	case OpcodeText:
		return KindText
	case OpcodeClose:
		return KindClose
	case OpcodePing:
		return KindPing
	case OpcodePong:
		return KindPong
	default:
		return KindOther
	}
}

// NewFrame builds a frame from an opcode and payload.
func NewFrame(opcode int, payload []byte) Frame {
	return Frame{
		Kind:    KindForOpcode(opcode),
		Opcode:  opcode,
		Payload: payload,
	}
}

// Text returns a text frame.
func Text(s string) Frame {
	return NewFrame(OpcodeText, []byte(s))
}

// Ping returns a ping frame carrying payload.
func Ping(payload []byte) Frame {
	return NewFrame(OpcodePing, payload)
}

// Pong returns a pong frame carrying payload.
func Pong(payload []byte) Frame {
	return NewFrame(OpcodePong, payload)
}

// Close returns a close frame carrying payload unchanged.
func Close(payload []byte) Frame {
	return NewFrame(OpcodeClose, payload)
}

// OpcodeString returns a human-readable opcode name
func (f Frame) OpcodeString() string {
	return OpcodeName(f.Opcode)
}

// OpcodeName returns a human-readable name for an opcode.
func OpcodeName(opcode int) string {
	switch opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", opcode)
	}
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{Kind=%s, Opcode=%s, Length=%d}",
		f.Kind, f.OpcodeString(), len(f.Payload))
}
