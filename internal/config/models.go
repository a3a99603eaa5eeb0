package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// Defaults
const (
	DefaultPort            = 9988
	DefaultPath            = "/websocket"
	DefaultMaxRequestBytes = 64 * 1024
	DefaultMaxMessageBytes = 64 * 1024
	DefaultSendBuffer      = 256
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongTimeout     = 60 * time.Second
	DefaultInstance        = "wsrelay"
	DefaultLogLevel        = "info"
)

// Config is the complete server configuration file.
type Config struct {
	Version   int       `yaml:"version"`
	Server    Server    `yaml:"server"`
	TLS       TLS       `yaml:"tls,omitempty"`
	Relay     Relay     `yaml:"relay"`
	Advertise Advertise `yaml:"advertise"`
	LogLevel  string    `yaml:"log_level"`
}

// Server holds listener and transport settings.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Path            string        `yaml:"path"`              // WebSocket endpoint path
	MaxRequestBytes int           `yaml:"max_request_bytes"` // HTTP request header limit
	MaxMessageBytes int64         `yaml:"max_message_bytes"` // Largest inbound WebSocket message
	SendBuffer      int           `yaml:"send_buffer"`       // Outbound messages queued per connection
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongTimeout     time.Duration `yaml:"pong_timeout"` // Read deadline; the server pings at 9/10 of it
}

// TLS enables wss:// when both files are set.
type TLS struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Enabled reports whether TLS is configured.
func (t TLS) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

// Relay holds frame handling settings.
type Relay struct {
	UnsupportedFrames string `yaml:"unsupported_frames"` // "close" or "ignore"
}

// Advertise controls mDNS advertisement of the relay.
type Advertise struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: Server{
			Port:            DefaultPort,
			Path:            DefaultPath,
			MaxRequestBytes: DefaultMaxRequestBytes,
			MaxMessageBytes: DefaultMaxMessageBytes,
			SendBuffer:      DefaultSendBuffer,
			WriteTimeout:    DefaultWriteTimeout,
			PongTimeout:     DefaultPongTimeout,
		},
		Relay: Relay{
			UnsupportedFrames: "close",
		},
		Advertise: Advertise{
			Instance: DefaultInstance,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Path == "" {
		c.Server.Path = d.Server.Path
	}
	if c.Server.MaxRequestBytes == 0 {
		c.Server.MaxRequestBytes = d.Server.MaxRequestBytes
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = d.Server.MaxMessageBytes
	}
	if c.Server.SendBuffer == 0 {
		c.Server.SendBuffer = d.Server.SendBuffer
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = d.Server.PongTimeout
	}
	if c.Relay.UnsupportedFrames == "" {
		c.Relay.UnsupportedFrames = d.Relay.UnsupportedFrames
	}
	if c.Advertise.Instance == "" {
		c.Advertise.Instance = d.Advertise.Instance
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with '/': %q", c.Server.Path))
	}
	if c.Server.MaxRequestBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_request_bytes must be positive: %d", c.Server.MaxRequestBytes))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes must be positive: %d", c.Server.MaxMessageBytes))
	}
	if c.Server.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("server.send_buffer must be positive: %d", c.Server.SendBuffer))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive: %s", c.Server.WriteTimeout))
	}
	if c.Server.PongTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.pong_timeout must be positive: %s", c.Server.PongTimeout))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be provided together"))
	}
	switch c.Relay.UnsupportedFrames {
	case "close", "ignore":
	default:
		errs = append(errs, fmt.Errorf("relay.unsupported_frames must be close or ignore: %q", c.Relay.UnsupportedFrames))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error: %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
