package server

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/muurk/wsrelay/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig creates a TLS configuration for wss:// from certificate and
// key files.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS private key: %w", err)
	}

	cfg, err := NewTLSConfigFromMemory(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certPath, err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)
	return cfg, nil
}

// NewTLSConfigFromMemory creates a TLS configuration from PEM-encoded
// certificate and key data.
func NewTLSConfigFromMemory(certPEM, keyPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return buildTLSConfig(cert), nil
}

func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		// HTTP/1.1 only: the WebSocket upgrade is not defined over h2 here
		NextProtos: []string{"http/1.1"},
		VerifyConnection: func(cs tls.ConnectionState) error {
			logging.LogTLSHandshake(
				cs.ServerName,
				cs.Version,
				cs.CipherSuite,
				cs.ServerName,
			)
			return nil
		},
	}
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	if config == nil {
		return map[string]interface{}{"enabled": false}
	}
	return map[string]interface{}{
		"enabled":         true,
		"min_version":     tls.VersionName(config.MinVersion),
		"num_certs":       len(config.Certificates),
		"next_protos":     config.NextProtos,
		"session_tickets": !config.SessionTicketsDisabled,
	}
}
