package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/enginekit/pkg/host"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"warn", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"off", Disabled, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestWith_MergesFields(t *testing.T) {
	rec := NewRecordingLogger()
	l := With(With(rec, String("a", "1")), String("b", "2"))
	l.Info("hello", String("c", "3"))

	entries := rec.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	var keys []string
	for _, f := range entries[0].Fields {
		keys = append(keys, f.Key)
	}
	if strings.Join(keys, ",") != "a,b,c" {
		t.Errorf("field keys = %v, want [a b c]", keys)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a := NewRecordingLogger()
	b := NewRecordingLogger()
	l := Multi(a, nil, b)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	for name, r := range map[string]*RecordingLogger{"a": a, "b": b} {
		if got := len(r.Entries()); got != 4 {
			t.Errorf("logger %s got %d entries, want 4", name, got)
		}
	}
}

func TestScope_Context(t *testing.T) {
	if _, ok := ScopeFrom(context.Background()); ok {
		t.Error("ScopeFrom(background) ok = true, want false")
	}

	ctx := WithScope(context.Background(), Scope{Component: "scheduler", Operation: "dispatch"})
	s, ok := ScopeFrom(ctx)
	if !ok || s.Component != "scheduler" || s.Operation != "dispatch" {
		t.Fatalf("ScopeFrom = %+v, %v", s, ok)
	}

	rec := NewRecordingLogger()
	FromContext(ctx, rec).Warn("careful")
	e := rec.Entries()[0]
	if v, _ := e.Field("component"); v != "scheduler" {
		t.Errorf("component = %v, want scheduler", v)
	}
	if v, _ := e.Field("op"); v != "dispatch" {
		t.Errorf("op = %v, want dispatch", v)
	}

	// A context without a scope returns the logger unchanged.
	if got := FromContext(context.Background(), rec); got != Logger(rec) {
		t.Error("FromContext without scope should return the same logger")
	}
}

func TestZerologAdapter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithOptions(ZerologOptions{Out: &buf, JSON: true, Level: InfoLevel})

	l.Debug("hidden")
	l.Info("task finished",
		String("task", "setup"),
		Int("n", 3),
		Bool("ok", true),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
	)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["message"] != "task finished" {
		t.Errorf("message = %v", got["message"])
	}
	if got["task"] != "setup" {
		t.Errorf("task = %v", got["task"])
	}
	if got["n"] != float64(3) {
		t.Errorf("n = %v", got["n"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v", got["error"])
	}
	if got["level"] != "info" {
		t.Errorf("level = %v", got["level"])
	}
}

func TestZerologAdapter_WrapsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))
	l.Warn("w", Any("payload", map[string]int{"x": 1}))

	if !strings.Contains(buf.String(), `"payload":{"x":1}`) {
		t.Errorf("output = %s, want payload object", buf.String())
	}
}

func TestCommandAdapter(t *testing.T) {
	rec := &host.Recorder{}
	l := NewCommandAdapter(rec, "engine", WarnLevel)

	l.Info("ignored")
	l.Warn("kick from untracked context", String("component", "scheduler"), String("task", "two words"))
	l.Error("failed", Err(errors.New("bad thing")))

	cmds := rec.Named(host.CommandConsoleWrite)
	if len(cmds) != 2 {
		t.Fatalf("got %d console commands, want 2", len(cmds))
	}
	if cmds[0].Args[0] != "engine" {
		t.Errorf("source = %q, want engine", cmds[0].Args[0])
	}
	want := `[WARN] kick from untracked context component=scheduler task="two words"`
	if cmds[0].Args[1] != want {
		t.Errorf("line = %q, want %q", cmds[0].Args[1], want)
	}
	if cmds[1].Args[1] != `[ERROR] failed error="bad thing"` {
		t.Errorf("line = %q", cmds[1].Args[1])
	}
}

func TestCommandAdapter_Disabled(t *testing.T) {
	rec := &host.Recorder{}
	l := NewCommandAdapter(rec, "engine", Disabled)
	l.Error("nothing")

	if len(rec.Commands()) != 0 {
		t.Errorf("disabled adapter wrote %d commands", len(rec.Commands()))
	}
}

func TestRecordingLogger_Find(t *testing.T) {
	r := NewRecordingLogger()
	r.Warn("x")
	r.Warn("y")
	r.Error("x")

	if got := len(r.Find(WarnLevel, "x")); got != 1 {
		t.Errorf("Find(warn, x) = %d, want 1", got)
	}
	if got := r.Count(WarnLevel); got != 2 {
		t.Errorf("Count(warn) = %d, want 2", got)
	}
}
