package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/muurk/wsrelay/internal/config"
	"github.com/muurk/wsrelay/internal/discovery"
	"github.com/muurk/wsrelay/internal/handshake"
	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/registry"
	"github.com/muurk/wsrelay/internal/relay"
	"github.com/muurk/wsrelay/internal/version"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Shutdown waits for connections to drain
const shutdownTimeout = 10 * time.Second

// Server is the WebSocket chat relay
type Server struct {
	config     *config.Config
	registry   *registry.Registry
	negotiator *handshake.Negotiator
	dispatcher *relay.Dispatcher
	hooks      *relay.Hooks
	upgrader   websocket.Upgrader
	router     *mux.Router
	connOpts   connOptions

	httpServer *http.Server
	tlsConfig  *tls.Config
	listener   net.Listener
	advert     *discovery.Advertisement

	// mu guards activeConns, shuttingDown and wg.Add so Shutdown's
	// snapshot and Wait see every tracked connection
	wg           sync.WaitGroup
	mu           sync.Mutex
	activeConns  map[string]*conn
	shuttingDown bool
}

// New creates a new Server instance
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	policy, err := relay.ParsePolicy(cfg.Relay.UnsupportedFrames)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		tlsConfig, err = NewTLSConfig(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	reg := registry.New()
	s := &Server{
		config:     cfg,
		registry:   reg,
		negotiator: handshake.NewNegotiator(cfg.Server.Path),
		dispatcher: relay.NewDispatcher(reg, relay.WithUnsupportedPolicy(policy)),
		hooks:      relay.NewHooks(reg),
		upgrader:   newUpgrader(),
		connOpts: connOptions{
			maxMessageBytes: cfg.Server.MaxMessageBytes,
			sendBuffer:      cfg.Server.SendBuffer,
			writeWait:       cfg.Server.WriteTimeout,
			pongWait:        cfg.Server.PongTimeout,
		},
		tlsConfig:   tlsConfig,
		activeConns: make(map[string]*conn),
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc(cfg.Server.Path, s.handleUpgrade)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleUpgrade)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleUpgrade)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		MaxHeaderBytes:    cfg.Server.MaxRequestBytes,
		ReadHeaderTimeout: cfg.Server.PongTimeout,
		ConnState:         logConnState,
		TLSConfig:         tlsConfig,
	}

	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the server's connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Start listens on the configured address and blocks until a shutdown
// signal or a fatal error.
func (s *Server) Start() error {
	addr := s.config.Addr()

	logging.Info("Starting wsrelay server",
		zap.String("addr", addr),
		zap.String("path", s.config.Server.Path),
		zap.String("version", version.Full()),
		zap.String("log_level", s.config.LogLevel),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts connections on l until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(l net.Listener) error {
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	logging.Info("Server listening for connections",
		zap.String("addr", l.Addr().String()),
	)

	if s.config.Advertise.Enabled {
		if err := s.advertise(l.Addr()); err != nil {
			// Discovery is a convenience; the relay still serves
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) advertise(addr net.Addr) error {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("cannot advertise non-TCP address %s", addr)
	}

	adv, err := discovery.Advertise(s.config.Advertise.Instance, tcpAddr.Port, discovery.TXT{
		Path:    s.config.Server.Path,
		Secure:  s.tlsConfig != nil,
		Version: version.Version,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.advert = adv
	s.mu.Unlock()
	return nil
}

// track records c as active. It refuses once Shutdown has started.
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return false
	}
	s.activeConns[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.activeConns, c.id)
	s.mu.Unlock()
	s.wg.Done()
}

// serveConn runs one upgraded connection until it closes.
func (s *Server) serveConn(c *conn) {
	if !s.track(c) {
		logging.Info("Refusing connection during shutdown",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
		)
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}

	defer func() {
		s.hooks.OnClose(c)
		c.Terminate()
		<-c.writerDone
		s.untrack(c)
	}()

	logging.Info("WebSocket connection established",
		zap.String("conn_id", c.id),
		zap.String("label", c.label),
		zap.Strings("subprotocols", c.handshake.Subprotocols),
	)

	go c.writePump()
	s.hooks.OnOpen(c)
	c.readLoop(s.dispatcher, s.hooks)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	adv := s.advert
	s.mu.Unlock()
	if adv != nil {
		adv.Shutdown()
	}

	// Stops the listener and idle HTTP connections; upgraded connections
	// are hijacked and closed below
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Error shutting down HTTP server", zap.Error(err))
	}

	s.mu.Lock()
	s.shuttingDown = true
	conns := make([]*conn, 0, len(s.activeConns))
	for _, c := range s.activeConns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		logging.Info("Closing active connection",
			zap.String("conn_id", c.id),
			zap.String("label", c.label),
		)
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()

	return nil
}

// GetActiveConnections returns the number of active WebSocket connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// logConnState logs transport-level connection events. Registration waits
// for the upgrade; a raw connection is never a broadcast target.
func logConnState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		logging.LogConnection(c.RemoteAddr().String(), "connection_accepted")
	case http.StateHijacked:
		logging.LogConnection(c.RemoteAddr().String(), "connection_hijacked")
	case http.StateClosed:
		logging.LogConnection(c.RemoteAddr().String(), "connection_closed")
	}
}
