package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr aliases slog.Attr so callers only import this package.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }
func Int(key string, value int) Attr { return slog.Int(key, value) }
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Any(key string, value any) Attr { return slog.Any(key, value) }

// Cavity tags a line with a cavity number.
func Cavity(n int) Attr { return slog.Int(FieldCavity, n) }

// Stage tags a line with a sequencer stage.
func Stage(name string) Attr { return slog.String(FieldStage, name) }

// Error records err under the "error" key; a nil error is written as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// NewNop returns a logger that drops everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger yields a
// no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}

const (
	defaultErrorHint = "see the daemon log for the preceding lines"
	defaultImpact    = "the station continues; results may be incomplete"
)

// WarnWithContext logs a warning that always carries event_type, error_hint,
// and impact. Values already present in attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, withEventFields(attrs, eventType, true)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelError, msg, withEventFields(attrs, eventType, false)...)
}

func withEventFields(attrs []Attr, eventType string, impact bool) []Attr {
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		present[a.Key] = true
	}
	out := append([]Attr(nil), attrs...)
	if !present[FieldEventType] {
		out = append(out, slog.String(FieldEventType, eventType))
	}
	if !present[FieldErrorHint] {
		out = append(out, slog.String(FieldErrorHint, defaultErrorHint))
	}
	if impact && !present[FieldImpact] {
		out = append(out, slog.String(FieldImpact, defaultImpact))
	}
	return out
}
