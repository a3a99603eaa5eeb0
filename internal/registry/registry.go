// Package registry tracks the connections eligible to receive broadcasts.
//
// A Registry is shared by every connection of a server. It supports
// concurrent Register, Unregister and BroadcastText: a broadcast works on a
// snapshot taken under a read lock and performs the sends outside of it, so a
// connection joining or leaving mid-broadcast never corrupts the iteration.
package registry

import (
	"sort"
	"sync"

	"github.com/muurk/wsrelay/internal/logging"
	"go.uber.org/zap"
)

// Conn is the view of a connection the registry needs.
type Conn interface {
	// ID returns the unique connection identifier.
	ID() string
	// Label returns a human-readable label for diagnostics.
	Label() string
	// SendText queues a text message for the connection. It must not block
	// on a slow peer.
	SendText(msg string) error
}

// Registry is a set of live connections keyed by ID.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Register adds c. Registering a connection that is already present is a
// no-op.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	_, exists := r.conns[c.ID()]
	if !exists {
		r.conns[c.ID()] = c
	}
	size := len(r.conns)
	r.mu.Unlock()

	if !exists {
		logging.Debug("Connection registered",
			zap.String("conn_id", c.ID()),
			zap.String("label", c.Label()),
			zap.Int("registered", size),
		)
	}
}

// Unregister removes c if present.
func (r *Registry) Unregister(c Conn) {
	r.mu.Lock()
	_, exists := r.conns[c.ID()]
	delete(r.conns, c.ID())
	size := len(r.conns)
	r.mu.Unlock()

	if exists {
		logging.Debug("Connection unregistered",
			zap.String("conn_id", c.ID()),
			zap.String("label", c.Label()),
			zap.Int("registered", size),
		)
	}
}

// BroadcastText sends msg to every registered connection and returns how
// many accepted it. A recipient that fails is skipped; the rest still get
// the message.
func (r *Registry) BroadcastText(msg string) int {
	targets := r.snapshot()

	delivered := 0
	for _, c := range targets {
		if err := c.SendText(msg); err != nil {
			logging.Warn("Skipping broadcast recipient",
				zap.String("conn_id", c.ID()),
				zap.String("label", c.Label()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	logging.Debug("Broadcast complete",
		zap.Int("recipients", len(targets)),
		zap.Int("delivered", delivered),
	)

	return delivered
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Has reports whether a connection with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// IDs returns the registered connection IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
