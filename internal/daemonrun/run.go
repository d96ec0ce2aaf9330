package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"hipot/internal/config"
	"hipot/internal/daemon"
	"hipot/internal/discovery"
	"hipot/internal/ipc"
	"hipot/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	ConfigPath  string
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// ExitError carries the process exit code requested by an emergency stop.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("station stopped (exit code %d)", e.Code)
}

// Run starts the hipot daemon runtime loop. It returns an *ExitError after an
// emergency stop, which SIGINT and SIGTERM also trigger.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, stopRun := context.WithCancel(context.WithoutCancel(cmdCtx))
	defer stopRun()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("hipot-%s.log", runID))

	var sessionID string
	var debugLogPath string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("hipot-%s.log", runID))
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:     level,
		Format:    cfg.Logging.Format,
		Outputs:   []string{"stdout", logPath},
		Caller:    opts.Development,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:     "debug",
			Format:    "json",
			Outputs:   []string{debugLogPath},
			Caller:    true,
			SessionID: sessionID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/hipot.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logHardwareSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update hipot.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "hipot-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "hipot-*.log", Exclude: []string{debugLogPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var exitCode atomic.Int64
	exitCode.Store(-1)
	exit := func(code int) {
		exitCode.Store(int64(code))
		stopRun()
	}

	resolver := discovery.NewResolver()
	station, err := Assemble(runCtx, cfg, resolver, exit, logger)
	if err != nil {
		logger.Error("assemble station", logging.Error(err))
		return err
	}
	defer station.Close()

	d, err := daemon.New(daemon.Options{
		Config:          cfg,
		ConfigPath:      opts.ConfigPath,
		Orchestrator:    station.Orchestrator,
		Store:           station.Store,
		Sessions:        station.Sessions,
		Resolver:        resolver,
		StartupWarnings: station.Warnings,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown signal received; running emergency stop",
			logging.String(logging.FieldEventType, "shutdown_signal"))
		d.EmergencyStop(runCtx)
	case <-runCtx.Done():
	}
	<-runCtx.Done()

	logger.Info("hipot daemon shutting down")
	if code := exitCode.Load(); code >= 0 {
		return &ExitError{Code: int(code)}
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "hipot.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logHardwareSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	hw := cfg.Hardware
	enabled := 0
	for _, c := range cfg.Cavities() {
		if c.RunEnabled {
			enabled++
		}
	}
	logger.Info("hardware snapshot",
		logging.String(logging.FieldEventType, "hardware_snapshot"),
		logging.Bool("simulate", hw.Simulate),
		logging.String("switch1", hw.Switch1),
		logging.String("switch2", hw.Switch2),
		logging.String("instrument1", hw.Instrument1),
		logging.String("instrument2", hw.Instrument2),
		logging.Bool("shared_instrument", hw.Instrument2 == ""),
		logging.Bool("laser_configured", cfg.Laser.Address != ""),
		logging.Int("cavities_enabled", enabled),
		logging.Duration("poll_timeout", cfg.PollTimeout()),
	)
}
