package batch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"hipot/internal/channelmap"
	"hipot/internal/config"
	"hipot/internal/device"
	"hipot/internal/logging"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

const progressStep = 100 / channelmap.CavityCount

// Sequencer runs one cavity. Implementations convert device failures into
// outcomes and return an error only when ctx is cancelled or the cavity
// cannot be mapped. Either error ends the batch.
type Sequencer interface {
	Run(ctx context.Context, cavity int, laserEnabled bool) (outcome.Cavity, error)
}

// Recorder persists finished batches.
type Recorder interface {
	RecordRun(ctx context.Context, report outcome.Report) error
}

// Options configures an Orchestrator.
type Options struct {
	Banks     device.Banks
	Sequencer Sequencer
	Recorder  Recorder
	Cavities  []config.CavitySettings
	// ResetCooldown is how long Start stays refused after a Reset.
	ResetCooldown time.Duration
	// StopTimeout bounds every wait inside EmergencyStop.
	StopTimeout time.Duration
	// Closers are closed after the banks during an emergency stop.
	Closers []io.Closer
	// Exit terminates the process at the end of an emergency stop.
	Exit   func(code int)
	Logger *slog.Logger
}

// Orchestrator owns the batch state and the single batch worker.
type Orchestrator struct {
	banks         device.Banks
	sequencer     Sequencer
	recorder      Recorder
	resetCooldown time.Duration
	stopTimeout   time.Duration
	closers       []io.Closer
	exit          func(int)
	logger        *slog.Logger
	now           func() time.Time

	mu            sync.Mutex
	settings      []config.CavitySettings
	pending       []config.CavitySettings
	cavities      []outcome.Cavity
	runID         string
	running       bool
	// busy is held from begin until the worker has recorded and reset, and
	// for the whole of a manual Reset. Only the holder touches the banks.
	busy          bool
	stopping      bool
	fault         bool
	startLocked   bool
	reportOpen    bool
	progress      int
	current       int
	stage         string
	cooldownUntil time.Time
	warnings      []string
	lastReport    *outcome.Report
	cancel        context.CancelFunc
	done          chan struct{}
	subscribers   map[int]chan Snapshot
	nextSub       int

	stopOnce sync.Once
}

// New builds an orchestrator with cleared batch state.
func New(opts Options) *Orchestrator {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	settings := normalizeSettings(opts.Cavities)
	o := &Orchestrator{
		banks:         opts.Banks,
		sequencer:     opts.Sequencer,
		recorder:      opts.Recorder,
		resetCooldown: opts.ResetCooldown,
		stopTimeout:   opts.StopTimeout,
		closers:       opts.Closers,
		exit:          opts.Exit,
		logger:        logging.NewComponentLogger(opts.Logger, "batch"),
		now:           time.Now,
		settings:      settings,
		subscribers:   make(map[int]chan Snapshot),
	}
	o.cavities = clearedCavities()
	return o
}

// Start launches a batch on the worker goroutine and returns immediately.
// It refuses while a batch runs (station.ErrRunInProgress) and while a fault
// report awaits Reset or the reset cool-down is active (station.ErrStartLocked).
func (o *Orchestrator) Start(ctx context.Context) error {
	run, err := o.begin(ctx)
	if err != nil {
		return err
	}
	go o.execute(run)
	return nil
}

// Run executes a batch on the calling goroutine and returns its report.
func (o *Orchestrator) Run(ctx context.Context) (outcome.Report, error) {
	run, err := o.begin(ctx)
	if err != nil {
		return outcome.Report{}, err
	}
	return o.execute(run), nil
}

type batchRun struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	id       string
	settings []config.CavitySettings
	started  time.Time
}

func (o *Orchestrator) begin(ctx context.Context) (*batchRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.stopping:
		return nil, station.Wrap(station.ErrStartLocked, "batch", "start", "emergency stop in progress", nil)
	case o.running:
		return nil, station.Wrap(station.ErrRunInProgress, "batch", "start", "a batch is already running", nil)
	case o.busy:
		return nil, station.Wrap(station.ErrRunInProgress, "batch", "start", "previous batch still finishing", nil)
	case o.startLocked:
		return nil, station.Wrap(station.ErrStartLocked, "batch", "start", "fault report awaits reset", nil)
	case o.now().Before(o.cooldownUntil):
		return nil, station.Wrap(station.ErrStartLocked, "batch", "start", "reset cool-down active", nil)
	}

	if o.pending != nil {
		o.settings = o.pending
		o.pending = nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &batchRun{
		cancel:   cancel,
		done:     make(chan struct{}),
		id:       uuid.NewString(),
		settings: slices.Clone(o.settings),
		started:  o.now(),
	}
	run.ctx = station.WithRunID(runCtx, run.id)

	o.running = true
	o.busy = true
	o.fault = false
	o.reportOpen = false
	o.runID = run.id
	o.cancel = cancel
	o.done = run.done
	o.current = 0
	o.stage = ""
	o.cavities = clearedCavities()
	o.progress = 0
	for _, s := range run.settings {
		if !s.RunEnabled {
			o.cavities[s.Number-1].Continuity = outcome.Disabled
			o.cavities[s.Number-1].Hypot = outcome.Disabled
			o.progress += progressStep
		}
	}

	logging.WithContext(run.ctx, o.logger).Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("enabled_cavities", channelmap.CavityCount-o.progress/progressStep),
	)
	o.publishLocked()
	return run, nil
}

func (o *Orchestrator) execute(run *batchRun) outcome.Report {
	defer close(run.done)
	defer run.cancel()
	defer o.release()
	logger := logging.WithContext(run.ctx, o.logger)

	stopped := false
	for _, s := range run.settings {
		if !s.RunEnabled {
			logger.Info("cavity disabled",
				logging.String(logging.FieldEventType, "cavity_disabled"),
				logging.Cavity(s.Number),
			)
			continue
		}
		if run.ctx.Err() != nil {
			stopped = true
			break
		}
		o.setCurrent(s.Number)
		result, err := o.sequencer.Run(run.ctx, s.Number, s.LaserEnabled)
		o.recordCavity(result, err == nil)
		if err != nil {
			stopped = true
			break
		}
	}

	report := o.finish(run, stopped)
	if o.recorder != nil {
		if err := o.recorder.RecordRun(context.WithoutCancel(run.ctx), report); err != nil {
			logging.WarnWithContext(logger, "batch history not saved", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "this batch is missing from run history"),
			)
		}
	}

	if !stopped && !report.Fault {
		logger.Info("batch passed; resetting",
			logging.String(logging.FieldEventType, "batch_auto_reset"),
		)
		o.reset(context.WithoutCancel(run.ctx), false)
	}
	return report
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	o.publishLocked()
}

func (o *Orchestrator) setCurrent(cavity int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = cavity
	o.stage = "idle"
	o.publishLocked()
}

// ObserveStage records the sequencer stage of the cavity under test.
func (o *Orchestrator) ObserveStage(cavity int, stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.current = cavity
	o.stage = stage
	o.publishLocked()
}

func (o *Orchestrator) recordCavity(result outcome.Cavity, completed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if result.Number < 1 || result.Number > channelmap.CavityCount {
		return
	}
	o.cavities[result.Number-1] = result
	if result.Failed() && completed {
		o.fault = true
	}
	if completed {
		o.progress = min(o.progress+progressStep, 100)
	}
	o.publishLocked()
}

func (o *Orchestrator) finish(run *batchRun, stopped bool) outcome.Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := outcome.Report{
		RunID:      run.id,
		StartedAt:  run.started,
		FinishedAt: o.now(),
		Fault:      o.fault,
		Stopped:    stopped,
		Cavities:   cloneCavities(o.cavities),
	}
	o.running = false
	o.cancel = nil
	o.current = 0
	o.stage = ""
	o.lastReport = cloneReport(&report)
	if o.fault {
		o.startLocked = true
		o.reportOpen = true
	} else if !stopped {
		o.reportOpen = true
	}

	logger := logging.WithContext(run.ctx, o.logger)
	switch {
	case stopped:
		logging.WarnWithContext(logger, "batch interrupted", "batch_stopped",
			logging.String(logging.FieldErrorHint, "inspect the fixture before restarting"),
			logging.String(logging.FieldImpact, "remaining cavities were not tested"),
		)
	case report.Fault:
		logging.WarnWithContext(logger, "batch finished with faults", "batch_fault",
			logging.Any("continuity_failures", report.Failures(outcome.Continuity)),
			logging.Any("hypot_failures", report.Failures(outcome.Hypot)),
			logging.String(logging.FieldErrorHint, "review the fault report and reset the station"),
			logging.String(logging.FieldImpact, "start is locked until reset"),
		)
	default:
		passed, _, disabled := report.Counts()
		logger.Info("batch passed",
			logging.String(logging.FieldEventType, "batch_pass"),
			logging.Int("passed", passed),
			logging.Int("disabled", disabled),
			logging.Duration("duration", report.Duration()),
		)
	}
	o.publishLocked()
	return report
}

// Reset clears the fault flag and outcomes, opens every channel, and holds
// Start off for the cool-down. closeReport also dismisses the published
// report. Reset returns once the cool-down has elapsed or ctx ends.
func (o *Orchestrator) Reset(ctx context.Context, closeReport bool) error {
	o.mu.Lock()
	switch {
	case o.stopping:
		o.mu.Unlock()
		return station.Wrap(station.ErrStartLocked, "batch", "reset", "emergency stop in progress", nil)
	case o.running:
		o.mu.Unlock()
		return station.Wrap(station.ErrRunInProgress, "batch", "reset", "stop the batch before resetting", nil)
	case o.busy:
		o.mu.Unlock()
		return station.Wrap(station.ErrRunInProgress, "batch", "reset", "previous batch or reset still finishing", nil)
	}
	o.busy = true
	o.mu.Unlock()

	o.reset(ctx, closeReport)
	o.release()

	if o.resetCooldown <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.resetCooldown):
		return nil
	}
}

// reset must be called with busy held.
func (o *Orchestrator) reset(ctx context.Context, closeReport bool) {
	logger := logging.WithContext(ctx, o.logger)

	o.mu.Lock()
	o.fault = false
	o.startLocked = false
	if closeReport {
		o.reportOpen = false
	}
	o.cooldownUntil = o.now().Add(o.resetCooldown)
	o.mu.Unlock()

	if err := o.banks.DisableAll(ctx); err != nil {
		logging.WarnWithContext(logger, "channel disable during reset failed", "reset_disable_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the switch matrix connections"),
			logging.String(logging.FieldImpact, "some relays may still be closed"),
		)
	}

	o.mu.Lock()
	o.cavities = clearedCavities()
	o.progress = 0
	o.current = 0
	o.stage = ""
	o.runID = ""
	o.publishLocked()
	o.mu.Unlock()

	logger.Info("station reset",
		logging.String(logging.FieldEventType, "batch_reset"),
		logging.Bool("report_closed", closeReport),
	)
}

// SetCavities replaces the per-cavity flags. While a batch runs the change is
// held and applied when the next batch starts.
func (o *Orchestrator) SetCavities(settings []config.CavitySettings) {
	normalized := normalizeSettings(settings)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		o.pending = normalized
		o.logger.Info("cavity settings held until next batch",
			logging.String(logging.FieldEventType, "settings_pending"),
		)
	} else {
		o.settings = normalized
		o.pending = nil
	}
	o.publishLocked()
}

// SetWarnings replaces the operator-facing warnings shown with the state.
func (o *Orchestrator) SetWarnings(warnings []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = slices.Clone(warnings)
	o.publishLocked()
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// LastReport returns the most recent batch report, if any.
func (o *Orchestrator) LastReport() (outcome.Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastReport == nil {
		return outcome.Report{}, false
	}
	return *cloneReport(o.lastReport), true
}

// Wait blocks until the batch worker, if any, has finished recording and
// resetting, or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	busy := o.busy
	o.mu.Unlock()
	if !busy || done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Slow subscribers only see the latest snapshot. The returned func ends the
// subscription.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = ch
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subscribers, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:           o.runID,
		Running:         o.running,
		Stopping:        o.stopping,
		Fault:           o.fault,
		StartLocked:     o.startLocked,
		ReportOpen:      o.reportOpen,
		Progress:        o.progress,
		CurrentCavity:   o.current,
		Stage:           o.stage,
		Cavities:        cloneCavities(o.cavities),
		Settings:        slices.Clone(o.settings),
		PendingSettings: o.pending != nil,
		Warnings:        slices.Clone(o.warnings),
		LastReport:      cloneReport(o.lastReport),
	}
	if o.now().Before(o.cooldownUntil) {
		snap.CooldownUntil = o.cooldownUntil
	}
	return snap
}

func (o *Orchestrator) publishLocked() {
	if len(o.subscribers) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func clearedCavities() []outcome.Cavity {
	out := make([]outcome.Cavity, channelmap.CavityCount)
	for idx := range out {
		out[idx] = outcome.NewCavity(idx + 1)
	}
	return out
}

// normalizeSettings returns one entry per cavity in ascending order. Cavities
// missing from in are enabled.
func normalizeSettings(in []config.CavitySettings) []config.CavitySettings {
	out := make([]config.CavitySettings, channelmap.CavityCount)
	for idx := range out {
		out[idx] = config.CavitySettings{Number: idx + 1, RunEnabled: true, LaserEnabled: true}
	}
	for _, s := range in {
		if channelmap.Valid(s.Number) {
			out[s.Number-1] = s
		}
	}
	return out
}
