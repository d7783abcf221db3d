// Package testutil provides logging helpers for tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Entry is one captured log record with its attributes flattened to
// strings. Attributes added through Logger.With are included.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Recorder captures log records so tests can assert on them.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns a debug-level logger that records every entry and
// also writes it to t.Log().
func NewRecorder(t testing.TB) (*slog.Logger, *Recorder) {
	t.Helper()
	r := &Recorder{}
	return slog.New(&recordHandler{rec: r, next: NewTestLogger(t).Handler()}), r
}

// Entries returns a copy of the captured entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Values returns the value of attribute key on every entry with the given
// message, in logging order.
func (r *Recorder) Values(message, key string) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Message != message {
			continue
		}
		if v, ok := e.Attrs[key]; ok {
			out = append(out, v)
		}
	}
	return out
}

type recordHandler struct {
	rec   *Recorder
	next  slog.Handler
	attrs []slog.Attr
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: map[string]string{}}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = fmt.Sprint(a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = fmt.Sprint(a.Value.Any())
		return true
	})
	h.rec.mu.Lock()
	h.rec.entries = append(h.rec.entries, e)
	h.rec.mu.Unlock()
	return h.next.Handle(ctx, r)
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordHandler{
		rec:   h.rec,
		next:  h.next.WithAttrs(attrs),
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup is not tracked; grouped attributes are recorded by key only.
func (h *recordHandler) WithGroup(name string) slog.Handler {
	return &recordHandler{rec: h.rec, next: h.next.WithGroup(name), attrs: h.attrs}
}
