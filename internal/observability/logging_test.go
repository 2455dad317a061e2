package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{name: "json format", config: LogConfig{Level: "info", Format: "json"}},
		{name: "text format", config: LogConfig{Level: "debug", Format: "text"}},
		{name: "defaults", config: LogConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
			if logger.logger == nil {
				t.Error("Logger.logger is nil")
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"invalid", "info"},
		{"", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LogConfig{Level: tt.level, Format: "json", Output: &buf})

			ctx := context.Background()
			logger.Debug(ctx, "debug message")
			logger.Info(ctx, "info message")
			logger.Warn(ctx, "warn message")
			logger.Error(ctx, "error message")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			sawLevels := map[string]bool{}
			for _, line := range lines {
				if line == "" {
					continue
				}
				var rec map[string]any
				if err := json.Unmarshal([]byte(line), &rec); err != nil {
					t.Fatalf("record not valid json: %v", err)
				}
				if lvl, ok := rec["level"].(string); ok {
					sawLevels[strings.ToLower(lvl)] = true
				}
			}
			if !sawLevels[tt.expected] {
				t.Errorf("expected to see a record at level %q, saw %v", tt.expected, sawLevels)
			}
		})
	}
}

func TestLoggerRedactsSensitiveValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "calling HA", "header", "Bearer sk-superlongsecret123")

	out := buf.String()
	if strings.Contains(out, "superlongsecret123") {
		t.Fatalf("expected secret to be redacted, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker in output, got %q", out)
	}
}

func TestLoggerCustomRedactPattern(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:          "info",
		Format:         "json",
		Output:         &buf,
		RedactPatterns: []string{`(?i)(secret=)\S+`},
	})

	logger.Info(context.Background(), "secret=hunter2-should-not-appear")

	if strings.Contains(buf.String(), "hunter2-should-not-appear") {
		t.Fatalf("expected custom pattern to redact message, got %q", buf.String())
	}
}

func TestWithTurnIDAttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := WithTurnID(context.Background(), "turn-42")
	logger.Info(ctx, "processing")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record not valid json: %v", err)
	}
	if rec["turn_id"] != "turn-42" {
		t.Fatalf("expected turn_id=turn-42 in record, got %v", rec["turn_id"])
	}
}

func TestWithTurnIDAbsentWhenNotSet(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "processing")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record not valid json: %v", err)
	}
	if _, ok := rec["turn_id"]; ok {
		t.Fatalf("expected no turn_id key, got %v", rec["turn_id"])
	}
}

func TestLoggerSlogReturnsUnderlying(t *testing.T) {
	logger := NewLogger(LogConfig{})
	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
}
