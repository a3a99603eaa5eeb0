package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/wsrelay/internal/config"
	"github.com/muurk/wsrelay/internal/server"
)

// Server command flags. Each overrides the config file only when set.
var serverFlags struct {
	host              string
	port              int
	path              string
	certPath          string
	keyPath           string
	logLevel          string
	unsupportedFrames string
	advertise         bool
	instance          string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the relay server",
	Long: `Start the WebSocket chat relay.

Settings are read from the config file (see 'wsrelay config show') and can be
overridden with flags. Providing --cert and --key serves wss:// instead of ws://.`,
	Example: `  # Start on the default port 9988
  wsrelay server

  # Listen on localhost only with debug logging
  wsrelay server --host 127.0.0.1 --log-level debug

  # Serve over TLS and advertise via mDNS
  wsrelay server --cert fullchain.pem --key privkey.pem --advertise

  # Ignore binary frames instead of closing the connection
  wsrelay server --unsupported-frames ignore`,
	RunE: runServer,
}

func init() {
	f := serverCmd.Flags()
	f.StringVar(&serverFlags.host, "host", "", "Listen address (empty = all interfaces)")
	f.IntVar(&serverFlags.port, "port", config.DefaultPort, "Listen port")
	f.StringVar(&serverFlags.path, "path", config.DefaultPath, "WebSocket endpoint path")
	f.StringVar(&serverFlags.certPath, "cert", "", "Path to TLS certificate file")
	f.StringVar(&serverFlags.keyPath, "key", "", "Path to TLS private key file")
	f.StringVar(&serverFlags.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&serverFlags.unsupportedFrames, "unsupported-frames", "close", "Handling of binary frames (close, ignore)")
	f.BoolVar(&serverFlags.advertise, "advertise", false, "Advertise the relay via mDNS")
	f.StringVar(&serverFlags.instance, "instance", config.DefaultInstance, "mDNS instance name")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// applyServerFlags copies explicitly set flags over the loaded config
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host = serverFlags.host
	}
	if f.Changed("port") {
		cfg.Server.Port = serverFlags.port
	}
	if f.Changed("path") {
		cfg.Server.Path = serverFlags.path
	}
	if f.Changed("cert") {
		cfg.TLS.Cert = serverFlags.certPath
	}
	if f.Changed("key") {
		cfg.TLS.Key = serverFlags.keyPath
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serverFlags.logLevel
	}
	if f.Changed("unsupported-frames") {
		cfg.Relay.UnsupportedFrames = serverFlags.unsupportedFrames
	}
	if f.Changed("advertise") {
		cfg.Advertise.Enabled = serverFlags.advertise
	}
	if f.Changed("instance") {
		cfg.Advertise.Instance = serverFlags.instance
	}
}
