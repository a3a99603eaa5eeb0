package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/protocol"
	"github.com/muurk/wsrelay/internal/registry"
	"go.uber.org/zap"
)

// Separator sits between the sender identity and the original text.
const Separator = "==========>>>>"

// TimestampLayout is the layout of the timestamp prefix.
const TimestampLayout = time.UnixDate

// Policy decides what happens to frames the relay does not support.
type Policy int

const (
	// PolicyClose fails the frame with ErrUnsupportedFrame.
	PolicyClose Policy = iota
	// PolicyIgnore logs and drops the frame.
	PolicyIgnore
)

// String returns the policy name as used in configuration
func (p Policy) String() string {
	switch p {
	case PolicyClose:
		return "close"
	case PolicyIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "close" or "ignore". An empty string is PolicyClose.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "close":
		return PolicyClose, nil
	case "ignore":
		return PolicyIgnore, nil
	default:
		return PolicyClose, fmt.Errorf("unknown unsupported-frame policy %q (expected close or ignore)", s)
	}
}

// Conn is the connection surface the dispatcher acts on.
type Conn interface {
	registry.Conn
	// SendPong writes a pong control frame.
	SendPong(payload []byte) error
	// CloseHandshake answers a close frame with payload and closes the
	// connection.
	CloseHandshake(payload []byte) error
	// Terminate closes the connection without a close handshake.
	Terminate()
}

// Dispatcher executes the action for each inbound frame.
type Dispatcher struct {
	registry    *registry.Registry
	now         func() time.Time
	unsupported Policy
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithUnsupportedPolicy sets the policy for unsupported frame kinds.
func WithUnsupportedPolicy(p Policy) Option {
	return func(d *Dispatcher) {
		d.unsupported = p
	}
}

// NewDispatcher creates a dispatcher that broadcasts through reg.
func NewDispatcher(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		now:         time.Now,
		unsupported: PolicyClose,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one frame from c. It returns ErrClosed after a close
// handshake and an error wrapping ErrUnsupportedFrame for frames the relay
// does not carry; both end the connection's read loop.
func (d *Dispatcher) Dispatch(c Conn, f protocol.Frame) error {
	switch f.Kind {
	case protocol.KindClose:
		logging.Debug("Close frame received",
			zap.String("conn_id", c.ID()),
			zap.Int("payload_length", len(f.Payload)),
		)
		if err := c.CloseHandshake(f.Payload); err != nil {
			return fmt.Errorf("close handshake: %w", err)
		}
		return ErrClosed

	case protocol.KindPing:
		logging.Debug("Received ping, sending pong",
			zap.String("conn_id", c.ID()),
		)
		if err := c.SendPong(f.Payload); err != nil {
			return fmt.Errorf("send pong: %w", err)
		}
		return nil

	case protocol.KindPong:
		logging.Debug("Received pong",
			zap.String("conn_id", c.ID()),
		)
		return nil

	case protocol.KindText:
		msg := FormatMessage(d.now(), c.ID(), string(f.Payload))
		n := d.registry.BroadcastText(msg)
		logging.LogBroadcast(c.ID(), n, d.registry.Len())
		return nil

	case protocol.KindOther:
		err := &UnsupportedFrameError{Opcode: f.Opcode}
		if d.unsupported == PolicyIgnore {
			logging.Warn("Dropping unsupported frame",
				zap.String("conn_id", c.ID()),
				zap.String("opcode", protocol.OpcodeName(f.Opcode)),
			)
			return nil
		}
		return err

	default:
		return &UnsupportedFrameError{Opcode: f.Opcode}
	}
}

// FormatMessage renders the broadcast form of a text message.
func FormatMessage(ts time.Time, connID string, text string) string {
	return ts.Format(TimestampLayout) + " " + connID + " " + Separator + " " + text
}

// Message is a parsed broadcast message.
type Message struct {
	// Time keeps the sender's wall clock. A zone abbreviation unknown to the
	// local zone database parses with a zero offset, so compare instants only
	// between relays in the same zone.
	Time   time.Time
	Sender string
	Text   string
}

// ParseMessage splits a message produced by FormatMessage.
func ParseMessage(s string) (Message, error) {
	head, text, ok := strings.Cut(s, " "+Separator+" ")
	if !ok {
		return Message{}, fmt.Errorf("missing separator in %q", s)
	}
	i := strings.LastIndexByte(head, ' ')
	if i < 0 {
		return Message{}, fmt.Errorf("missing sender in %q", s)
	}
	ts, err := time.Parse(TimestampLayout, head[:i])
	if err != nil {
		return Message{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return Message{Time: ts, Sender: head[i+1:], Text: text}, nil
}
