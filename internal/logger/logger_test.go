package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at normal level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("info line missing: %q", out)
	}

	buf.Reset()
	log.SetLevel(LevelVerbose)
	log.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug line missing at verbose level: %q", buf.String())
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("silenced")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(LevelOff, &buf)
	child := root.With("source", "nursery")

	child.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("child should inherit off level, got %q", buf.String())
	}

	root.SetLevel(LevelNormal)
	child.Info("crying")
	out := buf.String()
	if !strings.Contains(out, "source=nursery") || !strings.Contains(out, "crying") {
		t.Fatalf("expected structured field in %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(LevelNormal, &buf, FormatJSON)
	log.With("step", "notify").Warn("gateway slow")
	out := buf.String()
	if !strings.Contains(out, `"step":"notify"`) || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("unexpected json line %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"off":     LevelOff,
		"debug":   LevelVerbose,
		"verbose": LevelVerbose,
		"info":    LevelNormal,
		"":        LevelNormal,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
