package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesJSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSessionID(WithComponent(New(&buf, "info"), "frames"), "sess-1")
	logger.Debug("dropped")
	logger.Info("frame cached", "key", "4.123")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not a single JSON line: %v (%q)", err, buf.String())
	}
	if line["msg"] != "frame cached" || line["component"] != "frames" || line["session_id"] != "sess-1" {
		t.Errorf("line = %v", line)
	}
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	w := NewRotatingFile(path)
	defer w.Close()

	New(w, "info").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"msg":"hello"`)) {
		t.Errorf("log file = %q", data)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("0123456789abcdef"); got != "0123...cdef" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}
