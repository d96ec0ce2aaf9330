package batch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"hipot/internal/logging"
)

// ExitEmergencyStop is the process exit code after an emergency stop.
const ExitEmergencyStop = 3

// EmergencyStop cancels the running batch, opens every channel on both banks,
// closes the device sessions, and terminates the process through the exit
// hook. Device errors are logged and never stop the sequence. Every wait is
// bounded by the stop timeout. Only the first call has any effect.
func (o *Orchestrator) EmergencyStop(ctx context.Context) {
	o.stopOnce.Do(func() {
		o.emergencyStop(context.WithoutCancel(ctx))
	})
}

func (o *Orchestrator) emergencyStop(ctx context.Context) {
	logger := logging.WithContext(ctx, o.logger)

	o.mu.Lock()
	o.stopping = true
	cancel := o.cancel
	done := o.done
	running := o.running
	worker := o.busy
	o.publishLocked()
	o.mu.Unlock()

	logging.WarnWithContext(logger, "emergency stop", "emergency_stop",
		logging.Bool("batch_running", running),
		logging.String(logging.FieldErrorHint, "inspect the fixture before restarting the station"),
		logging.String(logging.FieldImpact, "batch aborted and process exiting"),
	)

	if cancel != nil {
		cancel()
	}
	o.disableBanks(ctx, "first")

	if worker && done != nil {
		select {
		case <-done:
		case <-time.After(o.stopTimeout):
			logging.WarnWithContext(logger, "batch worker did not exit in time", "emergency_stop_worker_timeout",
				logging.Duration("timeout", o.stopTimeout),
				logging.String(logging.FieldImpact, "exiting with the worker still blocked"),
			)
		}
	}

	o.disableBanks(ctx, "second")
	o.closeSessions(ctx)

	logger.Info("emergency stop complete; exiting",
		logging.String(logging.FieldEventType, "emergency_stop_exit"),
	)
	o.exit(ExitEmergencyStop)
}

// disableBanks opens every channel on both banks concurrently and waits at
// most the stop timeout.
func (o *Orchestrator) disableBanks(ctx context.Context, pass string) {
	logger := logging.WithContext(ctx, o.logger)
	dctx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	defer cancel()

	var g errgroup.Group
	errs := make([]error, len(o.banks.List()))
	for idx, bank := range o.banks.List() {
		g.Go(func() error {
			if bank.Switch == nil {
				return nil
			}
			if err := bank.Switch.DisableAllChannels(dctx); err != nil {
				errs[idx] = err
			}
			return nil
		})
	}
	if !o.boundedWait(dctx, g.Wait) {
		logging.WarnWithContext(logger, "channel disable timed out", "emergency_disable_timeout",
			logging.String("pass", pass),
			logging.Duration("timeout", o.stopTimeout),
			logging.String(logging.FieldErrorHint, "power down the switch matrix"),
			logging.String(logging.FieldImpact, "relays may still be closed"),
		)
		return
	}
	for idx, err := range errs {
		if err == nil {
			continue
		}
		logging.ErrorWithContext(logger, "channel disable failed", "emergency_disable_failed",
			logging.String("pass", pass),
			logging.String(logging.FieldBank, o.banks.List()[idx].ID.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "power down the switch matrix"),
		)
	}
}

func (o *Orchestrator) closeSessions(ctx context.Context) {
	logger := logging.WithContext(ctx, o.logger)
	dctx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	defer cancel()

	var closeErr error
	ok := o.boundedWait(dctx, func() error {
		errs := []error{o.banks.Close()}
		for _, c := range o.closers {
			if c != nil {
				errs = append(errs, c.Close())
			}
		}
		closeErr = errors.Join(errs...)
		return nil
	})
	switch {
	case !ok:
		logging.WarnWithContext(logger, "closing device sessions timed out", "emergency_close_timeout",
			logging.Duration("timeout", o.stopTimeout),
			logging.String(logging.FieldImpact, "sessions are released when the process exits"),
		)
	case closeErr != nil:
		logging.WarnWithContext(logger, "closing device sessions failed", "emergency_close_failed",
			logging.Error(closeErr),
			logging.String(logging.FieldImpact, "sessions are released when the process exits"),
		)
	}
}

// boundedWait runs fn and reports whether it returned before ctx ended.
func (o *Orchestrator) boundedWait(ctx context.Context, fn func() error) bool {
	finished := make(chan struct{})
	go func() {
		_ = fn()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-ctx.Done():
		return false
	}
}
