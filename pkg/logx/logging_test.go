package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger not IsZero")
	}
	l.Info("dropped", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("With on zero logger still IsZero")
	}
	if Nop().IsZero() {
		t.Fatal("Nop reported IsZero")
	}
}

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("comp", "dispatch"))

	l.Debug("hidden")
	l.Info("sent", String("recipient", "alice@example.com"), Int("entries", 3), Err(nil))
	l.Warn("failed", Err(errors.New("boom")))

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	if lines[0]["comp"] != "dispatch" || lines[0]["recipient"] != "alice@example.com" || lines[0]["entries"] != float64(3) {
		t.Fatalf("fields = %v", lines[0])
	}
	if _, ok := lines[0]["err"]; ok {
		t.Fatalf("nil error logged: %v", lines[0])
	}
	if lines[1]["err"] != "boom" || lines[1]["level"] != "warn" {
		t.Fatalf("warn line = %v", lines[1])
	}
	if c, _ := lines[0]["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
	if l.Enabled(LevelDebug) || !l.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with level")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	defer svc.Close()
	child := log.With(String("comp", "test"))

	child.Info("one")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: second}})
	child.Info("two")
	child.Error("three")

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if got := decodeLines(t, a); len(got) != 1 || got[0]["message"] != "one" || got[0]["comp"] != "test" {
		t.Fatalf("first file = %s", a)
	}
	if got := decodeLines(t, b); len(got) != 1 || got[0]["message"] != "three" {
		t.Fatalf("second file = %s", b)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
