package daemonrun

import (
	"context"
	"log/slog"
	"sync"

	"hipot/internal/batch"
	"hipot/internal/logging"
	"hipot/internal/notifications"
	"hipot/internal/outcome"
)

// notifyingRecorder stores each finished batch and pushes it to ntfy. The push
// runs in the background so a slow topic never holds up the auto-reset.
type notifyingRecorder struct {
	store    batch.Recorder
	notifier notifications.Service
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func (r *notifyingRecorder) RecordRun(ctx context.Context, report outcome.Report) error {
	err := r.store.RecordRun(ctx, report)
	if r.notifier == nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if nerr := r.notifier.NotifyBatchFinished(context.WithoutCancel(ctx), report); nerr != nil {
			logging.WarnWithContext(r.logger, "batch notification failed", "notification_failed",
				logging.String("run_id", report.RunID),
				logging.Error(nerr),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			)
		}
	}()
	return err
}

// wait blocks until in-flight notifications finish.
func (r *notifyingRecorder) wait() {
	r.wg.Wait()
}
