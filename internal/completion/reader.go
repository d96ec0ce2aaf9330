// Package completion waits for an instrument to finish a test and classifies
// the result.
//
// Instruments raise the operation-complete flag transiently while a test is
// still settling, so a result is only accepted after two consecutive polls
// report complete. The status record read on the accepting poll is split on
// commas and its verdict column decides the outcome.
package completion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"hipot/internal/device"
	"hipot/internal/logging"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

const (
	// DefaultInterval is the pause between polls.
	DefaultInterval = 100 * time.Millisecond
	// verdictField is the status record column holding the verdict.
	verdictField = 2
	passToken    = "PASS"
)

// Result is the accepted status of one test.
type Result struct {
	Outcome outcome.Outcome
	Record  string
	Polls   int
}

// Reader polls an instrument until a debounced completion is observed.
type Reader struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New builds a Reader. A zero interval uses DefaultInterval; a zero timeout
// waits until the context ends.
func New(interval, timeout time.Duration, logger *slog.Logger) *Reader {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reader{
		interval: interval,
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "completion"),
	}
}

// Read blocks until inst reports completion on two consecutive polls, then
// classifies the status record read on the second poll. Device errors,
// timeouts, and cancellation return a Fail result with the error.
func (r *Reader) Read(ctx context.Context, inst device.TestInstrument, test outcome.Test) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()
	lastComplete := false
	polls := 0

	for {
		record, err := inst.ReadRawStatus(ctx)
		if err != nil {
			return Result{Outcome: outcome.Fail, Polls: polls}, err
		}
		complete, err := inst.PollOperationComplete(ctx)
		if err != nil {
			return Result{Outcome: outcome.Fail, Record: record, Polls: polls}, err
		}
		polls++
		logger.Debug("completion poll",
			logging.String("test", string(test)),
			logging.String("record", record),
			logging.Bool("complete", complete),
			logging.Int("poll", polls),
		)

		if complete && lastComplete {
			result := Result{Outcome: Classify(record), Record: record, Polls: polls}
			logger.Info("test complete",
				logging.String(logging.FieldEventType, "test_complete"),
				logging.String("test", string(test)),
				logging.String("outcome", string(result.Outcome)),
				logging.String("record", record),
			)
			return result, nil
		}
		lastComplete = complete

		if r.timeout > 0 && time.Since(start) >= r.timeout {
			return Result{Outcome: outcome.Fail, Record: record, Polls: polls},
				station.Wrap(station.ErrTimeout, "completion", string(test), "instrument never reported completion", nil)
		}

		select {
		case <-ctx.Done():
			return Result{Outcome: outcome.Fail, Record: record, Polls: polls}, ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

// Classify maps a raw status record to Pass only when its verdict column is
// exactly PASS. Short or malformed records fail.
func Classify(record string) outcome.Outcome {
	fields := strings.Split(record, ",")
	if len(fields) <= verdictField {
		return outcome.Fail
	}
	if strings.TrimSpace(fields[verdictField]) == passToken {
		return outcome.Pass
	}
	return outcome.Fail
}
