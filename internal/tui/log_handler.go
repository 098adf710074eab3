package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordFadeDelay is how long a log line stays in the status bar.
const logRecordFadeDelay = 5 * time.Second

// logRecordMsg delivers a slog record to the model for the status bar.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

func (m logRecordMsg) severity() int {
	switch {
	case m.Level >= slog.LevelError:
		return 2
	case m.Level >= slog.LevelWarn:
		return 1
	default:
		return 0
	}
}

// logRecordFadeMsg clears the status bar log line if it is still the one
// identified by seq.
type logRecordFadeMsg struct {
	seq int
}

// logQueueSize bounds the records waiting for the event loop. Records
// beyond it are dropped.
const logQueueSize = 64

// LogHandler is a slog.Handler that routes records into a bubbletea
// program's status bar. Handle never blocks, so it is safe to log from
// inside Update: records are queued and one goroutine forwards them with
// program.Send. Records logged before SetProgram wait in the queue. Handlers derived via WithAttrs/WithGroup share the
// queue.
type LogHandler struct {
	level slog.Level
	out   *logOutbox
	attrs []slog.Attr
	group string
}

type logOutbox struct {
	program atomic.Pointer[tea.Program]
	queue   chan logRecordMsg
	start   sync.Once
}

func (o *logOutbox) forward() {
	for msg := range o.queue {
		if p := o.program.Load(); p != nil {
			p.Send(msg)
		}
	}
}

// NewLogHandler creates a handler for records at or above level.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level: level,
		out:   &logOutbox{queue: make(chan logRecordMsg, logQueueSize)},
	}
}

// SetProgram sets the program that receives log records.
func (h *LogHandler) SetProgram(p *tea.Program) {
	h.out.program.Store(p)
	if p != nil {
		h.out.start.Do(func() { go h.out.forward() })
	}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	select {
	case h.out.queue <- logRecordMsg{Summary: h.summary(record), Level: record.Level}:
	default:
	}
	return nil
}

// summary renders "message (key=value, ...)". The component attribute is
// shown as a prefix instead.
func (h *LogHandler) summary(record slog.Record) string {
	var prefix string
	var parts []string
	add := func(a slog.Attr) {
		if a.Key == "component" {
			prefix = a.Value.String() + ": "
			return
		}
		k := a.Key
		if h.group != "" {
			k = h.group + "." + k
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, a.Value))
	}
	for _, a := range h.attrs {
		add(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	s := prefix + record.Message
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		level: h.level,
		out:   h.out,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
		group: h.group,
	}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	g := name
	if h.group != "" {
		g = h.group + "." + name
	}
	return &LogHandler{
		level: h.level,
		out:   h.out,
		attrs: append([]slog.Attr(nil), h.attrs...),
		group: g,
	}
}
