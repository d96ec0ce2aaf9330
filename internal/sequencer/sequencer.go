package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hipot/internal/channelmap"
	"hipot/internal/completion"
	"hipot/internal/device"
	"hipot/internal/laser"
	"hipot/internal/logging"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

// Stage names a sequencer state.
type Stage string

const (
	Idle              Stage = "idle"
	ContinuitySetup   Stage = "continuity_setup"
	ContinuityExecute Stage = "continuity_execute"
	ContinuityRead    Stage = "continuity_read"
	HypotSetup        Stage = "hypot_setup"
	HypotExecute      Stage = "hypot_execute"
	HypotRead         Stage = "hypot_read"
	LaserStage        Stage = "laser"
	Done              Stage = "done"
)

// Marker marks a cavity that passed both tests.
type Marker interface {
	Mark(ctx context.Context, cavity int) (laser.Result, error)
}

// Program describes how one test kind is programmed into the instrument.
type Program struct {
	Name       string
	Parameters device.TestParameters
}

// Options configures a Sequencer.
type Options struct {
	Continuity  Program
	Hypot       Program
	SettleDelay time.Duration
	Reader      *completion.Reader
	Marker      Marker
	// OnStage is called on every stage transition. It must not block.
	OnStage func(cavity int, stage Stage)
}

// Sequencer runs the per-cavity state machine against a pair of banks.
type Sequencer struct {
	banks  device.Banks
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Sequencer. A nil Reader polls with completion defaults and no
// timeout.
func New(banks device.Banks, opts Options, logger *slog.Logger) *Sequencer {
	logger = logging.NewComponentLogger(logger, "sequencer")
	if opts.Reader == nil {
		opts.Reader = completion.New(0, 0, logger)
	}
	return &Sequencer{banks: banks, opts: opts, logger: logger, now: time.Now}
}

// Run sequences cavity and returns its outcomes. The returned error is
// non-nil when ctx was cancelled, in which case the interrupted test is left
// Unset and earlier outcomes are kept, or when cavity is not a station
// position, in which case no device is touched.
func (s *Sequencer) Run(ctx context.Context, cavity int, laserEnabled bool) (outcome.Cavity, error) {
	result := outcome.NewCavity(cavity)
	result.StartedAt = s.now()
	ctx = station.WithCavity(ctx, cavity)
	logger := logging.WithContext(ctx, s.logger)

	assignment, err := channelmap.Map(cavity)
	if err != nil {
		logging.ErrorWithContext(logger, "cavity cannot be mapped", "cavity_invalid", logging.Error(err))
		result.FinishedAt = s.now()
		return result, err
	}
	bank, err := s.banks.Get(assignment.Bank)
	if err != nil {
		return s.abandon(ctx, result, err)
	}
	logger.Info("cavity started",
		logging.String(logging.FieldEventType, "cavity_start"),
		logging.String(logging.FieldBank, assignment.Bank.String()),
		logging.Int("withstand_channel", assignment.WithstandChannel),
		logging.Int("return_channel", assignment.ReturnChannel),
		logging.Int("continuity_channel", assignment.ContinuityChannel),
		logging.Bool("laser_enabled", laserEnabled),
	)

	defer s.finish(ctx, &result)

	// Continuity.
	continuity, record, err := s.runTest(ctx, bank, outcome.Continuity, s.opts.Continuity, testStages{
		setup: ContinuitySetup, execute: ContinuityExecute, read: ContinuityRead,
	}, func(ctx context.Context) error {
		if err := bank.Switch.ConfigureContinuityChannels(ctx, []int{assignment.ContinuityChannel}); err != nil {
			return err
		}
		return bank.Switch.ConfigureReturnChannels(ctx, []int{assignment.ReturnChannel})
	})
	result.Continuity = continuity
	result.ContinuityRecord = record
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Continuity = outcome.Unset
			return result, ctxErr
		}
		result.Errors = append(result.Errors, err.Error())
	}

	// Hypot, gated on continuity.
	if result.Continuity != outcome.Pass {
		result.Hypot = outcome.Skipped
		logger.Info("hypot skipped",
			logging.String(logging.FieldEventType, "hypot_skipped"),
			logging.String("reason", "continuity "+string(result.Continuity)),
		)
	} else {
		hypot, record, err := s.runTest(ctx, bank, outcome.Hypot, s.opts.Hypot, testStages{
			setup: HypotSetup, execute: HypotExecute, read: HypotRead,
		}, func(ctx context.Context) error {
			if err := bank.Switch.ConfigureWithstandChannels(ctx, []int{assignment.WithstandChannel}); err != nil {
				return err
			}
			return bank.Switch.ConfigureReturnChannels(ctx, []int{assignment.ReturnChannel})
		})
		result.Hypot = hypot
		result.HypotRecord = record
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Hypot = outcome.Unset
				return result, ctxErr
			}
			result.Errors = append(result.Errors, err.Error())
		}
	}

	s.enter(ctx, cavity, LaserStage)
	s.mark(ctx, &result, laserEnabled)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

type testStages struct {
	setup   Stage
	execute Stage
	read    Stage
}

// runTest performs setup, execute, and read for one test kind. The
// instrument is aborted after reading whether or not the read succeeded.
func (s *Sequencer) runTest(ctx context.Context, bank device.Bank, test outcome.Test, program Program, stages testStages, configure func(context.Context) error) (outcome.Outcome, string, error) {
	cavity, _ := station.CavityFromContext(ctx)

	s.enter(ctx, cavity, stages.setup)
	setupCtx := station.WithStage(ctx, string(stages.setup))
	if err := s.setup(setupCtx, bank, configure); err != nil {
		s.logStageFailure(setupCtx, test, err)
		return outcome.Fail, "", err
	}

	s.enter(ctx, cavity, stages.execute)
	execCtx := station.WithStage(ctx, string(stages.execute))
	if err := s.execute(execCtx, bank.Instrument, program); err != nil {
		s.logStageFailure(execCtx, test, err)
		s.abort(execCtx, bank.Instrument)
		return outcome.Fail, "", err
	}

	s.enter(ctx, cavity, stages.read)
	readCtx := station.WithStage(ctx, string(stages.read))
	res, err := s.opts.Reader.Read(readCtx, bank.Instrument, test)
	s.abort(readCtx, bank.Instrument)
	if err != nil {
		s.logStageFailure(readCtx, test, err)
		return outcome.Fail, res.Record, err
	}
	return res.Outcome, res.Record, nil
}

func (s *Sequencer) setup(ctx context.Context, bank device.Bank, configure func(context.Context) error) error {
	if err := s.banks.DisableAll(ctx); err != nil {
		return fmt.Errorf("disable channels: %w", err)
	}
	if err := configure(ctx); err != nil {
		return fmt.Errorf("configure %s: %w", bank.ID, err)
	}
	return s.settle(ctx)
}

func (s *Sequencer) execute(ctx context.Context, inst device.TestInstrument, program Program) error {
	if err := inst.CreateOrReplaceProgram(ctx, program.Name); err != nil {
		return fmt.Errorf("create program %q: %w", program.Name, err)
	}
	if err := inst.SetParameters(ctx, program.Parameters); err != nil {
		return fmt.Errorf("set parameters: %w", err)
	}
	if err := inst.Execute(ctx); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

func (s *Sequencer) settle(ctx context.Context) error {
	if s.opts.SettleDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.opts.SettleDelay):
		return nil
	}
}

// abort stops the instrument even when ctx is already cancelled.
func (s *Sequencer) abort(ctx context.Context, inst device.TestInstrument) {
	if err := inst.Abort(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "instrument abort failed", "instrument_abort_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the instrument display and stop the test manually"),
			logging.String(logging.FieldImpact, "instrument may still be running a program"),
		)
	}
}

func (s *Sequencer) mark(ctx context.Context, result *outcome.Cavity, laserEnabled bool) {
	logger := logging.WithContext(station.WithStage(ctx, string(LaserStage)), s.logger)
	reason := ""
	switch {
	case ctx.Err() != nil:
		reason = "run cancelled"
	case !laserEnabled:
		reason = "laser disabled for cavity"
	case s.opts.Marker == nil:
		reason = "no laser marker configured"
	case result.Continuity != outcome.Pass:
		reason = "continuity " + string(result.Continuity)
	case result.Hypot != outcome.Pass:
		reason = "hypot " + string(result.Hypot)
	}
	if reason != "" {
		result.Laser = outcome.LaserSkipped
		result.LaserReason = reason
		logger.Info("laser marking skipped",
			logging.String(logging.FieldEventType, "laser_skipped"),
			logging.String("reason", reason),
		)
		return
	}

	res, err := s.opts.Marker.Mark(ctx, result.Number)
	result.Laser = res.Outcome
	result.LaserReason = res.Reason
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logging.WarnWithContext(logger, "laser marking failed", "laser_mark_failed",
			logging.Error(err),
			logging.String("response", res.Response),
			logging.String(logging.FieldErrorHint, "check the laser marker is ready and reachable"),
			logging.String(logging.FieldImpact, "cavity passed but was not marked"),
		)
		return
	}
	logger.Info("cavity marked",
		logging.String(logging.FieldEventType, "laser_marked"),
		logging.String("response", res.Response),
	)
}

// finish opens every channel on both banks. It runs on a context detached
// from cancellation so it still lands after an emergency stop.
func (s *Sequencer) finish(ctx context.Context, result *outcome.Cavity) {
	s.enter(ctx, result.Number, Done)
	safeCtx := station.WithStage(context.WithoutCancel(ctx), string(Done))
	if err := s.banks.DisableAll(safeCtx); err != nil {
		result.Errors = append(result.Errors, err.Error())
		logging.ErrorWithContext(logging.WithContext(safeCtx, s.logger), "final channel disable failed", "disable_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "open the switch matrix relays manually before touching the fixture"),
		)
	}
	result.FinishedAt = s.now()
	logging.WithContext(ctx, s.logger).Info("cavity finished",
		logging.String(logging.FieldEventType, "cavity_done"),
		logging.String("continuity", string(result.Continuity)),
		logging.String("hypot", string(result.Hypot)),
		logging.String("laser", string(result.Laser)),
		logging.Duration("duration", result.Duration()),
	)
}

// abandon records a cavity that could not reach its bank at all.
func (s *Sequencer) abandon(ctx context.Context, result outcome.Cavity, err error) (outcome.Cavity, error) {
	s.logStageFailure(ctx, outcome.Continuity, err)
	result.Continuity = outcome.Fail
	result.Hypot = outcome.Skipped
	result.Laser = outcome.LaserSkipped
	result.LaserReason = "bank unavailable"
	result.Errors = append(result.Errors, err.Error())
	s.finish(ctx, &result)
	return result, nil
}

func (s *Sequencer) enter(ctx context.Context, cavity int, stage Stage) {
	logging.WithContext(ctx, s.logger).Debug("stage entered", logging.Stage(string(stage)))
	if s.opts.OnStage != nil {
		s.opts.OnStage(cavity, stage)
	}
}

func (s *Sequencer) logStageFailure(ctx context.Context, test outcome.Test, err error) {
	logger := logging.WithContext(ctx, s.logger)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("stage interrupted",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.String("test", string(test)),
		)
		return
	}
	hint := "check the device connections and the diagnostic log"
	if errors.Is(err, station.ErrTimeout) {
		hint = "instrument never reported completion; check the program and poll timeout"
	}
	logging.ErrorWithContext(logger, "test stage failed", "stage_failed",
		logging.String("test", string(test)),
		logging.String("error_kind", station.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
	)
}
