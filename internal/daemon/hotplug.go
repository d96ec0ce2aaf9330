package daemon

import (
	"context"
	"log/slog"
	"path/filepath"

	"hipot/internal/discovery"
	"hipot/internal/logging"
)

// Reopener is a device session that can be reopened at a new path.
type Reopener interface {
	Path() string
	Reopen(path string) error
}

// Resolver maps a configured hardware identifier to a device path.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Session ties a configured identifier to its open serial session.
type Session struct {
	Name       string
	Identifier string
	Port       Reopener
}

type hotplug struct {
	sessions []Session
	resolver Resolver
	logger   *slog.Logger
	monitor  *discovery.Monitor
}

func newHotplug(sessions []Session, resolver Resolver, logger *slog.Logger) *hotplug {
	h := &hotplug{
		sessions: sessions,
		resolver: resolver,
		logger:   logging.NewComponentLogger(logger, "hotplug"),
	}
	h.monitor = discovery.NewMonitor(logger, h.handleAdd)
	return h
}

func (h *hotplug) start(ctx context.Context) {
	_ = h.monitor.Start(ctx)
}

func (h *hotplug) stop() {
	h.monitor.Stop()
}

func (h *hotplug) running() bool {
	return h.monitor.Running()
}

// handleAdd reopens every session whose identifier now resolves to devicePath.
func (h *hotplug) handleAdd(ctx context.Context, devicePath string) {
	added := canonicalPath(devicePath)
	for _, s := range h.sessions {
		path, err := h.resolver.Resolve(ctx, s.Identifier)
		if err != nil {
			h.logger.Debug("hotplug identifier not resolved",
				logging.String("device", s.Name),
				logging.Error(err),
			)
			continue
		}
		if canonicalPath(path) != added {
			continue
		}
		if err := s.Port.Reopen(path); err != nil {
			logging.WarnWithContext(h.logger, "device reopen failed", "device_reopen_failed",
				logging.String("device", s.Name),
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the cable and permissions on the serial device"),
				logging.String(logging.FieldImpact, "tests on this bank fail until the session reconnects"),
			)
			continue
		}
		h.logger.Info("device session reopened",
			logging.String(logging.FieldEventType, "device_reopened"),
			logging.String("device", s.Name),
			logging.String("path", path),
		)
	}
}

func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
