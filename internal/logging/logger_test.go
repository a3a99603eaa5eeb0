package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	restore := ReplaceLogger(nil)
	defer restore()

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	restore := ReplaceLogger(nil)
	defer restore()

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestLogConnection(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceLogger(zap.New(core))
	defer restore()

	LogConnection("10.0.0.1:5000", "websocket_upgraded", zap.String("conn_id", "abc"))

	entries := logs.FilterMessage("Connection event").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "websocket_upgraded" {
		t.Errorf("event = %v, want websocket_upgraded", fields["event"])
	}
	if fields["remote_addr"] != "10.0.0.1:5000" {
		t.Errorf("remote_addr = %v", fields["remote_addr"])
	}
	if fields["conn_id"] != "abc" {
		t.Errorf("conn_id = %v, want abc", fields["conn_id"])
	}
}

func TestLogFrame(t *testing.T) {
	tests := []struct {
		name      string
		opcode    int
		payload   []byte
		wantFrame string
		wantKey   string
		wantValue string
	}{
		{"text", 1, []byte("hi"), "text", "content", "hi"},
		{"ping", 9, []byte{0xde, 0xad}, "ping", "hex", "dead"},
		{"unknown", 3, []byte{0x01}, "opcode(3)", "hex", "01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			restore := ReplaceLogger(zap.New(core))
			defer restore()

			LogFrame("abc", "received", tt.opcode, tt.payload)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["frame"] != tt.wantFrame {
				t.Errorf("frame = %v, want %s", fields["frame"], tt.wantFrame)
			}
			if fields[tt.wantKey] != tt.wantValue {
				t.Errorf("%s = %v, want %s", tt.wantKey, fields[tt.wantKey], tt.wantValue)
			}
		})
	}
}

func TestLogFrameSkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := ReplaceLogger(zap.New(core))
	defer restore()

	LogFrame("abc", "sent", 1, []byte("hi"))
	if logs.Len() != 0 {
		t.Errorf("got %d entries at info level, want 0", logs.Len())
	}
}

func TestLogBroadcast(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceLogger(zap.New(core))
	defer restore()

	LogBroadcast("abc", 2, 3)

	fields := logs.FilterMessage("Broadcast text message").All()[0].ContextMap()
	if fields["delivered"] != int64(2) || fields["registered"] != int64(3) {
		t.Errorf("fields = %v", fields)
	}
}

func TestHexDumpTruncates(t *testing.T) {
	if got := hexDump([]byte{0xde, 0xad}); got != "dead" {
		t.Errorf("hexDump = %q, want %q", got, "dead")
	}
	long := make([]byte, 300)
	if got := hexDump(long); len(got) != 2*maxDumpBytes+3 {
		t.Errorf("hexDump length = %d, want %d", len(got), 2*maxDumpBytes+3)
	}
}
