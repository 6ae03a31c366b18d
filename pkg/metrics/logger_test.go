package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelNames(t *testing.T) {
	for l := LevelDebug; l <= LevelSilent; l++ {
		parsed, err := ParseLevel(strings.ToLower(l.String()))
		if err != nil || parsed != l {
			t.Errorf("ParseLevel(%q) = %v, %v", l.String(), parsed, err)
		}
	}
	if Level(42).String() != "UNKNOWN" || Level(-1).String() != "UNKNOWN" {
		t.Error("out-of-range levels should print UNKNOWN")
	}
}

func TestParseLevelAliases(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"warning", LevelWarn},
		{" Debug ", LevelDebug},
		{"off", LevelSilent},
		{"NONE", LevelSilent},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	got, err := ParseLevel("verbose")
	if err == nil || got != LevelInfo {
		t.Errorf("unknown level: got %v, %v", got, err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"text": FormatText, "": FormatText, "JSON": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoggerText(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithName("engine"))

	l.Info("packet decrypted", Fields{"profile": "BALANCED"})

	out := buf.String()
	for _, want := range []string{"level=info", `msg="packet decrypted"`, "profile=BALANCED", "logger=engine"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q: %s", want, out)
		}
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithFormat(FormatJSON), WithFields(Fields{"app": "sevenlayer"}))

	l.Warn("decrypt failed", Fields{"kind": "integrity"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	want := map[string]any{"level": "warning", "msg": "decrypt failed", "kind": "integrity", "app": "sevenlayer"}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing time")
	}
	if _, ok := entry["logger"]; ok {
		t.Error("unnamed logger should not write a logger field")
	}
}

func TestLoggerThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	l.Debug("d")
	l.Info("i")
	if buf.Len() != 0 {
		t.Fatalf("entries below threshold written: %s", buf.String())
	}
	l.Warn("w")
	l.Error("e")
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("expected 2 entries, got %d: %s", n, buf.String())
	}

	if l.Enabled(LevelInfo) || !l.Enabled(LevelError) {
		t.Error("Enabled disagrees with the threshold")
	}
}

func TestLoggerSilent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithLevel(LevelSilent))
	l.Error("dropped")
	if buf.Len() != 0 || l.Enabled(LevelError) || l.Enabled(LevelSilent) {
		t.Errorf("silent logger wrote: %s", buf.String())
	}

	n := NullLogger()
	n.Error("dropped")
	if n.Enabled(LevelError) {
		t.Error("NullLogger should be disabled")
	}
}

func TestLoggerDerived(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(WithOutput(&buf), WithLevel(LevelDebug), WithFields(Fields{"app": "sevenlayer"}))

	child := root.Named("engine").Named("layer").With(Fields{"layer": "chaos-stream"})
	child.Debug("layer finished", Fields{"layer": "noise-embedder"})

	out := buf.String()
	for _, want := range []string{"app=sevenlayer", "logger=engine.layer", "layer=noise-embedder"} {
		if !strings.Contains(out, want) {
			t.Errorf("derived output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	root.Info("plain")
	if strings.Contains(buf.String(), "layer=") || strings.Contains(buf.String(), "logger=") {
		t.Errorf("child fields leaked into the parent: %s", buf.String())
	}
}

func TestLoggerForCall(t *testing.T) {
	var buf bytes.Buffer
	l := TestLogger(&buf).ForCall("op-9", DirectionDecrypt)
	l.Warn("decrypt failed")

	out := buf.String()
	if !strings.Contains(out, "op_id=op-9") || !strings.Contains(out, "direction=decrypt") {
		t.Errorf("call fields missing: %s", out)
	}
}

func TestLoggerSharedLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(WithOutput(&buf), WithLevel(LevelError))
	child := root.Named("instrument")

	root.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("children should follow the parent's level")
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	if prev == nil {
		t.Fatal("default global logger is nil")
	}
	var buf bytes.Buffer
	SetLogger(TestLogger(&buf))
	GetLogger().Info("via global")
	if !strings.Contains(buf.String(), "via global") {
		t.Error("SetLogger not honored")
	}
}
