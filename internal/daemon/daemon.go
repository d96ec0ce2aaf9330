package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"hipot/internal/batch"
	"hipot/internal/config"
	"hipot/internal/history"
	"hipot/internal/logging"
	"hipot/internal/outcome"
)

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// ConfigPath is watched for cavity flag edits. Empty disables the watcher.
	ConfigPath   string
	Orchestrator *batch.Orchestrator
	Store        *history.Store
	// Sessions are reopened when their device reappears on the bus.
	Sessions []Session
	Resolver Resolver
	// StartupWarnings are reported in status next to configuration warnings,
	// typically devices that failed to open.
	StartupWarnings []string
	Logger          *slog.Logger
}

// Daemon coordinates the station services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	orch       *batch.Orchestrator
	store      *history.Store
	hotplug    *hotplug
	api        *apiServer
	startup    []string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool           `json:"running" yaml:"running"`
	PID          int            `json:"pid" yaml:"pid"`
	LockFilePath string         `json:"lock_file_path" yaml:"lock_file_path"`
	HistoryPath  string         `json:"history_path" yaml:"history_path"`
	ConfigPath   string         `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	Hotplug      bool           `json:"hotplug" yaml:"hotplug"`
	Batch        batch.Snapshot `json:"batch" yaml:"batch"`
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Orchestrator == nil || opts.Store == nil {
		return nil, errors.New("daemon requires config, orchestrator, and history store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := opts.Config.LockPath()
	d := &Daemon{
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		orch:       opts.Orchestrator,
		store:      opts.Store,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		startup:    opts.StartupWarnings,
	}
	if len(opts.Sessions) > 0 && opts.Resolver != nil {
		d.hotplug = newHotplug(opts.Sessions, opts.Resolver, logger)
	}
	api, err := newAPIServer(opts.Config, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the watcher, hotplug monitor,
// and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hipot daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.orch.SetWarnings(d.warnings(d.cfg.Warnings))
	if d.configPath != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.watchConfig(d.ctx)
		}()
	}
	if d.hotplug != nil {
		d.hotplug.start(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("hipot daemon started",
		logging.String("lock", d.lockPath),
		logging.String("history", d.store.Path()),
	)
	return nil
}

// Stop stops background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.hotplug != nil {
		d.hotplug.stop()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("hipot daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// StartBatch launches a batch on the orchestrator.
func (d *Daemon) StartBatch(ctx context.Context) error {
	return d.orch.Start(ctx)
}

// Reset clears the batch state after a fault or between runs.
func (d *Daemon) Reset(ctx context.Context, closeReport bool) error {
	return d.orch.Reset(ctx, closeReport)
}

// EmergencyStop aborts everything and terminates the process.
func (d *Daemon) EmergencyStop(ctx context.Context) {
	d.orch.EmergencyStop(ctx)
}

// LastReport returns the report of the most recent batch.
func (d *Daemon) LastReport() (outcome.Report, bool) {
	return d.orch.LastReport()
}

// Runs lists recorded batches, newest first.
func (d *Daemon) Runs(ctx context.Context, limit int) ([]history.RunSummary, error) {
	return d.store.ListRuns(ctx, limit)
}

// Run loads a recorded batch by id or unique id prefix.
func (d *Daemon) Run(ctx context.Context, idOrPrefix string) (outcome.Report, error) {
	return d.store.Run(ctx, idOrPrefix)
}

// Subscribe forwards published batch snapshots.
func (d *Daemon) Subscribe() (<-chan batch.Snapshot, func()) {
	return d.orch.Subscribe()
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		HistoryPath:  d.store.Path(),
		ConfigPath:   d.configPath,
		Hotplug:      d.hotplug != nil && d.hotplug.running(),
		Batch:        d.orch.Snapshot(),
	}
}

func (d *Daemon) watchConfig(ctx context.Context) {
	err := config.Watch(ctx, d.configPath, d.applyConfig, func(err error) {
		logging.WarnWithContext(d.logger, "config reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration file; previous settings stay active"),
			logging.String(logging.FieldImpact, "cavity flag edits are not applied"),
		)
	})
	if err != nil {
		logging.WarnWithContext(d.logger, "config watcher unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the daemon to apply cavity flag edits"),
			logging.String(logging.FieldImpact, "settings changes require a restart"),
		)
	}
}

// applyConfig hands reloaded cavity flags to the orchestrator. Other sections
// only take effect on restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.orch.SetCavities(cfg.Cavities())
	d.orch.SetWarnings(d.warnings(cfg.Warnings))
	d.logger.Info("cavity settings reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Int("warnings", len(cfg.Warnings)),
	)
}

func (d *Daemon) warnings(configWarnings []error) []string {
	if len(configWarnings)+len(d.startup) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.startup)+len(configWarnings))
	out = append(out, d.startup...)
	for _, w := range configWarnings {
		out = append(out, w.Error())
	}
	return out
}
