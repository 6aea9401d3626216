package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output for info at warn level, got: %s", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("expected warn message in output")
	}
}

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		key          string
		shouldRedact bool
	}{
		{"API_TOKEN", true},
		{"api_token", true},
		{"DB_SECRET", true},
		{"USER_PASSWORD", true},
		{"password_hash", true},
		{"Authorization", true},
		{"record_id", false},
		{"hook", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf, "info").Info("test", tt.key, "value")

			var logEntry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}

			redacted := logEntry[tt.key] == "***REDACTED***"
			if redacted != tt.shouldRedact {
				t.Errorf("key %s redacted = %v, want %v", tt.key, redacted, tt.shouldRedact)
			}
		})
	}
}

func TestNewHandler_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				if err := json.Unmarshal([]byte(out), &entry); err != nil {
					t.Fatalf("json output is not JSON: %v", err)
				}
				if entry["record_id"] != "inv-1" {
					t.Errorf("record_id = %v", entry["record_id"])
				}
			},
		},
		{
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "record_id=inv-1") {
					t.Errorf("text output missing attribute: %s", out)
				}
			},
		},
		{
			format: "pretty",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "invocation started") || !strings.Contains(out, "record_id=inv-1") {
					t.Errorf("pretty output missing content: %s", out)
				}
				if strings.Contains(out, "\x1b[") {
					t.Errorf("pretty output to a buffer must not be colored: %q", out)
				}
				if strings.Contains(out, "hunter2") {
					t.Error("pretty output leaked a secret")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewHandler(&buf, tt.format, "info"))
			logger.Info("invocation started", "record_id", "inv-1", "db_password", "hunter2")
			tt.check(t, buf.String())
		})
	}
}

func TestNewFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.log")

	logger, closer, err := NewFromConfig("text", "debug", path)
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	logger.Debug("to file", "hook", "end_run")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "hook=end_run") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNewFromConfig_Discard(t *testing.T) {
	logger, closer, err := NewFromConfig("json", "info", "discard")
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	defer closer.Close()
	logger.Info("nowhere")
}

func TestNewFromConfig_BadPath(t *testing.T) {
	if _, _, err := NewFromConfig("json", "info", filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("expected error for unwritable log path")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info")

	ctx := WithContext(context.Background(), logger)
	FromContext(ctx).Info("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Error("expected message in log output")
	}
}

func TestFromContextDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected default logger, got nil")
	}
	logger.Debug("below default level")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithFields(NewWithWriter(&buf, "info"), map[string]any{
		"invocation_id": "inv-1",
		"depth":         2,
	})
	logger.Info("test message")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if logEntry["invocation_id"] != "inv-1" {
		t.Errorf("invocation_id = %v", logEntry["invocation_id"])
	}
	if logEntry["depth"] != float64(2) {
		t.Errorf("depth = %v", logEntry["depth"])
	}
}
