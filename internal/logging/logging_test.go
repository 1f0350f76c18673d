package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantDebug bool
	}{
		{"prod info", "prod", "info", false},
		{"prod debug", "prod", "DEBUG", true},
		{"unknown level", "prod", "loud", false},
		{"empty level", "prod", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.env, tt.level)
			logger.Debug().Msg("debug line")
			logger.Info().Str("user_id", "u1").Msg("info line")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if got := strings.Contains(buf.String(), "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
				t.Fatalf("not JSON: %q", lines[len(lines)-1])
			}
			if entry["user_id"] != "u1" || entry["message"] != "info line" || entry["time"] == nil {
				t.Errorf("entry = %v", entry)
			}
		})
	}
}

func TestDevUsesConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "dev", "info")
	logger.Info().Msg("hello")
	if out := buf.String(); strings.HasPrefix(out, "{") || !strings.Contains(out, "hello") {
		t.Errorf("dev output = %q", out)
	}
}
