package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/skobkin/zwavelink/internal/config"
)

func TestFanoutWriter_ContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newFanoutWriter(errorWriter{err: errors.New("broken stdout")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestManagerConfigure_LogFileStillReceivesLogsWhenOutputFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "zwavelink.log")
	m := NewManagerWithOutput(errorWriter{err: errors.New("broken stderr")})
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	cleanLogPath := filepath.Clean(logPath)
	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(cleanLogPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

func TestManagerConfigure_JSONFormat(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var out bytes.Buffer
	m := NewManagerWithOutput(&out)
	if err := m.Configure(config.LoggingConfig{Level: "warn", Format: "json"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	logger := m.Logger("transfer")
	logger.Info("below level")
	logger.Warn("retransmit", "seq", 7)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &rec); err != nil {
		t.Fatalf("expected one json record, got %q: %v", out.String(), err)
	}
	if rec["msg"] != "retransmit" || rec["component"] != "transfer" || rec["seq"] != float64(7) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestManagerConfigure_RejectsUnknownSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{name: "level", cfg: config.LoggingConfig{Level: "verbose"}},
		{name: "format", cfg: config.LoggingConfig{Level: "info", Format: "xml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManagerWithOutput(io.Discard)
			if err := m.Configure(tc.cfg, ""); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for raw, want := range tests {
		got, err := parseLevel(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.Level() != want {
			t.Fatalf("parse %q = %v, want %v", raw, got, want)
		}
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
