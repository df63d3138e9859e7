package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one line per record:
//
//	2026-03-01T12:00:00Z INFO  [1a2b3c4d/rendering] caption: render progress frames_done=30 frames_total=120
//
// component, job_id, and stage are promoted into the prefix; everything else
// follows as key=value pairs.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(attr))
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) qualify(attr slog.Attr) slog.Attr {
	if h.prefix != "" {
		attr.Key = h.prefix + attr.Key
	}
	return attr
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, h.qualify(attr))
		return true
	})

	var component, jobID, stage string
	var sb strings.Builder
	for _, attr := range attrs {
		switch attr.Key {
		case FieldComponent:
			component = attr.Value.String()
			continue
		case FieldJobID:
			jobID = attr.Value.String()
			continue
		case FieldStage:
			stage = attr.Value.String()
			continue
		}
		writePair(&sb, attr.Key, attr.Value)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var line strings.Builder
	line.WriteString(ts.UTC().Format(time.RFC3339))
	fmt.Fprintf(&line, " %-5s ", record.Level.String())
	if tag := jobTag(jobID, stage); tag != "" {
		line.WriteString(tag)
		line.WriteByte(' ')
	}
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	line.WriteString(record.Message)
	line.WriteString(sb.String())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func jobTag(jobID, stage string) string {
	if len(jobID) > 8 {
		jobID = jobID[:8]
	}
	switch {
	case jobID != "" && stage != "":
		return "[" + jobID + "/" + stage + "]"
	case jobID != "":
		return "[" + jobID + "]"
	case stage != "":
		return "[" + stage + "]"
	}
	return ""
}

func writePair(sb *strings.Builder, key string, value slog.Value) {
	value = value.Resolve()
	if value.Kind() == slog.KindGroup {
		for _, attr := range value.Group() {
			writePair(sb, key+"."+attr.Key, attr.Value)
		}
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	sb.WriteString(quoteIfNeeded(valueText(value)))
}

func valueText(value slog.Value) string {
	switch value.Kind() {
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
	}
	return value.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}
