package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLoggerTo(&buf, "info", "json", false)
	log.Info("auth.debug", "refresh_token", "eyJ.secret", "password", "hunter2", "principal_id", "01J")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output: %v (%q)", err, buf.String())
	}
	if rec["refresh_token"] != "[redacted]" || rec["password"] != "[redacted]" {
		t.Fatalf("secrets leaked: %v", rec)
	}
	if rec["principal_id"] != "01J" {
		t.Fatalf("principal_id must be kept: %v", rec)
	}
}

func TestLogger_PrettyFormatRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLoggerTo(&buf, "info", "pretty", false)
	log.Info("auth.debug", "access_token", "eyJ.secret")

	if got := buf.String(); strings.Contains(got, "eyJ.secret") || !strings.Contains(got, "access_token=[redacted]") {
		t.Fatalf("pretty output not redacted: %q", got)
	}
}
