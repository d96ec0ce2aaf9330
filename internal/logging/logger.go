package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is debug, info, warn, or error. Anything else means info.
	Level string
	// Format is "console" (the default) or "json".
	Format string
	// Outputs lists "stdout", "stderr", or file paths. Empty means stdout.
	Outputs []string
	// Caller adds file:line to every record. Debug level implies it.
	Caller bool
	// SessionID, when set, is stamped on every record.
	SessionID string
}

// New builds a logger writing to every output in opts.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	caller := opts.Caller || level <= slog.LevelDebug

	w, err := openOutputs(opts.Outputs)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newPrettyHandler(w, level, caller)
	case "json":
		handler = newJSONHandler(w, level, caller)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if id := strings.TrimSpace(opts.SessionID); id != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(FieldSessionID, id)})
	}
	return slog.New(handler), nil
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	switch value := strings.ToLower(strings.TrimSpace(level)); value {
	case "warning":
		return slog.LevelWarn
	case "debug", "info", "warn", "error":
		if err := parsed.UnmarshalText([]byte(value)); err == nil {
			return parsed
		}
	}
	return slog.LevelInfo
}

// openOutputs opens each distinct output once. Files are appended to and
// their directories created on demand.
func openOutputs(outputs []string) (io.Writer, error) {
	if len(outputs) == 0 {
		return os.Stdout, nil
	}
	var writers []io.Writer
	opened := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" || opened[out] {
			continue
		}
		opened[out] = true
		switch out {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory for %s: %w", out, err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// newJSONHandler renames time to ts, lower-cases levels, and shortens source
// paths to file:line.
func newJSONHandler(w io.Writer, level slog.Level, caller bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: caller,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}
