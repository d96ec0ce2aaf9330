package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one line per record:
//
//	2026-03-04T08:00:00Z INFO sequencer: [cavity 3 hypot] stage passed key=value
//
// component, cavity, and stage are lifted out of the attributes into the
// header; everything else follows as key=value pairs.
type prettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	caller bool
	prefix string
	attrs  []slog.Attr
}

func newPrettyHandler(w io.Writer, level slog.Level, caller bool) *prettyHandler {
	return &prettyHandler{mu: new(sync.Mutex), w: w, level: level, caller: caller}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, qualify(h.prefix, a))
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var header struct{ component, cavity, stage string }
	var pairs []string
	add := func(a slog.Attr) {
		for _, leaf := range leaves("", a) {
			switch {
			case leaf.Key == FieldComponent && header.component == "":
				header.component = plain(leaf.Value)
			case leaf.Key == FieldCavity && header.cavity == "":
				header.cavity = plain(leaf.Value)
			case leaf.Key == FieldStage && header.stage == "":
				header.stage = plain(leaf.Value)
			default:
				pairs = append(pairs, leaf.Key+"="+quoted(leaf.Value))
			}
		}
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(qualify(h.prefix, a))
		return true
	})

	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteString(" " + levelLabel(r.Level) + " ")
	if header.component != "" {
		b.WriteString(header.component + ": ")
	}
	if tag := strings.TrimSpace(cavityTag(header.cavity) + " " + header.stage); tag != "" {
		b.WriteString("[" + tag + "] ")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.caller && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, p := range pairs {
		b.WriteString(" " + p)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func cavityTag(cavity string) string {
	if cavity == "" {
		return ""
	}
	return "cavity " + cavity
}

// qualify prefixes a top-level attribute key with the open groups.
func qualify(prefix string, a slog.Attr) slog.Attr {
	if prefix != "" && a.Key != "" {
		a.Key = prefix + a.Key
	}
	return a
}

// leaves flattens groups into dotted keys and drops empty attributes.
func leaves(prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return nil
	}
	if a.Value.Kind() != slog.KindGroup {
		if a.Key == "" {
			return nil
		}
		return []slog.Attr{{Key: prefix + a.Key, Value: a.Value}}
	}
	if a.Key != "" {
		prefix += a.Key + "."
	}
	var out []slog.Attr
	for _, member := range a.Value.Group() {
		out = append(out, leaves(prefix, member)...)
	}
	return out
}

func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// quoted renders v for a key=value pair, quoting strings that would not
// survive a whitespace split.
func quoted(v slog.Value) string {
	s := plain(v)
	if s == "" || strings.ContainsAny(s, " \t\r\n=\"") || strings.IndexFunc(s, func(r rune) bool { return r < ' ' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
