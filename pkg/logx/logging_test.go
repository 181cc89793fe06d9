package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "notify"))
	log.Info("fired", Int("favorites", 2), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["comp"] != "notify" {
		t.Fatalf("comp = %v, want notify", m["comp"])
	}
	if m["favorites"] != float64(2) {
		t.Fatalf("favorites = %v, want 2", m["favorites"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v, want boom", m["err"])
	}
	if m["message"] != "fired" {
		t.Fatalf("message = %v, want fired", m["message"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("IsZero() = false, want true")
	}
	l.Info("dropped")
	if l.With(String("a", "b")).IsZero() {
		t.Fatalf("With() on zero logger should carry fields")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRenderChatLine(t *testing.T) {
	t.Parallel()

	got := renderChatLine([]byte(`{"level":"warn","message":"send failed","owner":"42","time":"x"}`))
	want := "[WARN] send failed\n- owner=42"
	if got != want {
		t.Fatalf("renderChatLine = %q, want %q", got, want)
	}
	if got := renderChatLine([]byte("plain text\n")); !strings.HasPrefix(got, "plain text") {
		t.Fatalf("renderChatLine(raw) = %q", got)
	}
}
