package relay

import (
	"errors"

	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/registry"
	"go.uber.org/zap"
)

// Hooks keeps the registry in step with connection lifecycles.
type Hooks struct {
	registry *registry.Registry
}

// NewHooks creates lifecycle hooks for reg.
func NewHooks(reg *registry.Registry) *Hooks {
	return &Hooks{registry: reg}
}

// OnOpen registers an upgraded connection.
func (h *Hooks) OnOpen(c Conn) {
	h.registry.Register(c)
	logging.LogConnection(c.Label(), "websocket_upgraded",
		zap.String("conn_id", c.ID()),
		zap.Int("registered", h.registry.Len()),
	)
}

// OnClose unregisters a connection. Safe to call more than once.
func (h *Hooks) OnClose(c Conn) {
	h.registry.Unregister(c)
	logging.LogConnection(c.Label(), "websocket_closed",
		zap.String("conn_id", c.ID()),
		zap.Int("registered", h.registry.Len()),
	)
}

// OnFault terminates a connection after an unrecoverable error. The
// transport's close path then runs OnClose.
func (h *Hooks) OnFault(c Conn, err error) {
	if errors.Is(err, ErrUnsupportedFrame) {
		logging.Warn("Closing connection after unsupported frame",
			zap.String("conn_id", c.ID()),
			zap.String("label", c.Label()),
			zap.Error(err),
		)
	} else {
		logging.Error("Connection fault",
			zap.String("conn_id", c.ID()),
			zap.String("label", c.Label()),
			zap.Error(err),
		)
	}
	c.Terminate()
}
