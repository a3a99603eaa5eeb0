package relay

import (
	"errors"
	"fmt"

	"github.com/muurk/wsrelay/internal/protocol"
)

var (
	// ErrClosed is returned by Dispatch after a close frame has been
	// answered. The caller stops reading from the connection.
	ErrClosed = errors.New("connection closed by peer")

	// ErrUnsupportedFrame marks frames the relay does not carry.
	ErrUnsupportedFrame = errors.New("unsupported frame")
)

// UnsupportedFrameError reports the opcode of an unsupported frame.
type UnsupportedFrameError struct {
	Opcode int
}

func (e *UnsupportedFrameError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedFrame, protocol.OpcodeName(e.Opcode))
}

// Unwrap allows errors.Is(err, ErrUnsupportedFrame)
func (e *UnsupportedFrameError) Unwrap() error {
	return ErrUnsupportedFrame
}
