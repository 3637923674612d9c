package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LoggingConfig{Level: "info", Format: "json"}, &buf).NewComponentLogger("watch")

	ctx := logger.WithContext(context.Background())
	FromContext(ctx).WithRunID("run-1").WithError(errors.New("boom")).Error("Run failed")

	line := buf.String()
	for _, want := range []string{`"component":"watch"`, `"run_id":"run-1"`, `"error":"boom"`, `"message":"Run failed"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	// A context without a logger yields a logger that discards everything.
	FromContext(context.Background()).WithField("path", "x.json").Warn("ignored")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
		{"bogus", "info"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.level).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}
