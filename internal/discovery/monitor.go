package discovery

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"hipot/internal/logging"
)

// Monitor listens for udev netlink events and reports serial adapters being
// added, so sessions can reopen after a cable is replugged.
type Monitor struct {
	logger  *slog.Logger
	handler func(ctx context.Context, devicePath string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a monitor that calls handler with the /dev path of every
// added USB or ACM tty.
func NewMonitor(logger *slog.Logger, handler func(ctx context.Context, devicePath string)) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		handler: handler,
	}
}

// Start begins listening. Failing to open the netlink socket is logged and
// not returned; sessions then only reconnect on restart.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "replugged devices reconnect only after a restart"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.monitorLoop(ctx, conn, m.quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, addMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug reconnects may be missed"),
			)
		}
	}
}

// addMatcher matches SUBSYSTEM=tty add events for USB and ACM adapters.
func addMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
			"DEVNAME":   ttyPattern,
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	path := devicePath(uevent)
	if path == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	m.logger.Info("serial device added",
		logging.String(logging.FieldEventType, "hotplug_device_added"),
		logging.String("device", path),
	)
	if m.handler != nil {
		m.handler(ctx, path)
	}
}

// devicePath gets the /dev path from a uevent.
func devicePath(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return filepath.Join(defaultDevDir, devname)
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return filepath.Join(defaultDevDir, parts[len(parts)-1])
}
