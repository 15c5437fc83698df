package logger

import (
	"testing"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debug(message string, keyvals ...any) { r.lines = append(r.lines, "debug:"+message) }
func (r *recorder) Info(message string, keyvals ...any)  { r.lines = append(r.lines, "info:"+message) }
func (r *recorder) Warn(message string, keyvals ...any)  { r.lines = append(r.lines, "warn:"+message) }
func (r *recorder) Error(message string, keyvals ...any) { r.lines = append(r.lines, "error:"+message) }
func (r *recorder) Fatal(message string, keyvals ...any) { r.lines = append(r.lines, "fatal:"+message) }

func TestNoopBeforeInit(t *testing.T) {
	Reset()
	// Must not panic without backends.
	Info("hello")
	Warn("hello", "k", 1)
}

func TestFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	defer Reset()

	Debug("d")
	Info("i")
	Warn("w", "key", "value")
	Error("e")

	for _, r := range []*recorder{a, b} {
		if len(r.lines) != 4 {
			t.Fatalf("expected 4 lines, got %v", r.lines)
		}
		if r.lines[2] != "warn:w" {
			t.Errorf("unexpected third line %q", r.lines[2])
		}
	}
}
