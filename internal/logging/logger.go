package logging

import (
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	mu     sync.RWMutex
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WSRELAY_LOG_LEVEL"

// maxDumpBytes bounds the payload bytes included in frame logs
const maxDumpBytes = 256

// ParseLevel maps a level name to a zap level.
// Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize creates a new logger with the specified level.
// If level is empty, it checks the WSRELAY_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		setLogger(zap.NewNop())
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	setLogger(built)

	return nil
}

// InitializeFromEnv initializes the logger from the WSRELAY_LOG_LEVEL
// environment variable. CLI commands that should stay quiet by default use
// this instead of Initialize.
func InitializeFromEnv() error {
	return Initialize("")
}

// ReplaceLogger swaps the global logger and returns a function that restores
// the previous one. Intended for tests that observe log output.
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prev := logger
	logger = l
	mu.Unlock()
	return func() { setLogger(prev) }
}

func setLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		// Silent until initialized so library use never prints unexpectedly
		return zap.NewNop()
	}
	return l
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogConnection logs a connection lifecycle event. Extra fields such as the
// connection ID are appended as given.
func LogConnection(remoteAddr string, event string, fields ...zap.Field) {
	Info("Connection event", append([]zap.Field{
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	}, fields...)...)
}

// LogTLSHandshake logs TLS handshake details
func LogTLSHandshake(remoteAddr string, version uint16, cipherSuite uint16, serverName string) {
	Info("TLS handshake completed",
		zap.String("remote_addr", remoteAddr),
		zap.String("tls_version", tls.VersionName(version)),
		zap.String("cipher_suite", tls.CipherSuiteName(cipherSuite)),
		zap.String("server_name", serverName),
	)
}

// LogHTTPRequest logs an HTTP request
func LogHTTPRequest(remoteAddr string, method string, path string, headers map[string]string) {
	Info("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", headers),
	)
}

// LogHTTPResponse logs an HTTP response
func LogHTTPResponse(remoteAddr string, statusCode int, headers map[string]string) {
	Info("HTTP response sent",
		zap.String("remote_addr", remoteAddr),
		zap.Int("status_code", statusCode),
		zap.Any("headers", headers),
	)
}

// LogHandshakeRejected logs a refused upgrade with its reason
func LogHandshakeRejected(remoteAddr string, path string, statusCode int, reason error) {
	Warn("Rejected WebSocket upgrade",
		zap.String("remote_addr", remoteAddr),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Error(reason),
	)
}

var opcodeNames = map[int]string{
	1:  "text",
	2:  "binary",
	8:  "close",
	9:  "ping",
	10: "pong",
}

// LogFrame logs one WebSocket frame at debug level. Text payloads are logged
// as content, anything else as a truncated hex dump. opcode uses the RFC 6455
// values.
func LogFrame(connID string, direction string, opcode int, payload []byte) {
	l := GetLogger()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}

	name, ok := opcodeNames[opcode]
	if !ok {
		name = fmt.Sprintf("opcode(%d)", opcode)
	}

	fields := []zap.Field{
		zap.String("conn_id", connID),
		zap.String("direction", direction),
		zap.String("frame", name),
		zap.Int("length", len(payload)),
	}
	if opcode == 1 {
		fields = append(fields, zap.String("content", string(payload)))
	} else if len(payload) > 0 {
		fields = append(fields, zap.String("hex", hexDump(payload)))
	}

	l.Debug("WebSocket frame", fields...)
}

// LogBroadcast logs the outcome of relaying one message
func LogBroadcast(senderID string, delivered int, registered int) {
	Info("Broadcast text message",
		zap.String("sender", senderID),
		zap.Int("delivered", delivered),
		zap.Int("registered", registered),
	)
}

// hexDump encodes at most maxDumpBytes of data
func hexDump(data []byte) string {
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
