package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hipot/internal/outcome"
)

// ErrNotFound is returned when no run matches a lookup.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned when a run id prefix matches more than one run.
var ErrAmbiguous = errors.New("run id prefix is ambiguous")

// ErrReadOnly is returned by writes through a store from OpenReadOnly.
var ErrReadOnly = errors.New("history opened read-only")

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         string        `json:"id" yaml:"id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Fault      bool          `json:"fault" yaml:"fault"`
	Stopped    bool          `json:"stopped" yaml:"stopped"`
	Passed     int           `json:"passed" yaml:"passed"`
	Failed     int           `json:"failed" yaml:"failed"`
	Disabled   int           `json:"disabled" yaml:"disabled"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// RecordRun stores a finished batch. Recording the same run id twice
// replaces the earlier copy.
func (s *Store) RecordRun(ctx context.Context, report outcome.Report) error {
	if s.readOnly {
		return ErrReadOnly
	}
	ctx = ensureContext(ctx)
	if report.RunID == "" {
		return fmt.Errorf("record run: run id is required")
	}
	passed, failed, disabled := report.Counts()

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", report.RunID); err != nil {
			return fmt.Errorf("replace run: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, finished_at, fault, stopped, passed, failed, disabled, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			formatTime(report.StartedAt),
			formatTime(report.FinishedAt),
			boolToInt(report.Fault),
			boolToInt(report.Stopped),
			passed, failed, disabled,
			report.Duration().Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, c := range report.Cavities {
			errorsJSON, err := json.Marshal(c.Errors)
			if err != nil {
				return fmt.Errorf("encode cavity %d errors: %w", c.Number, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cavity_results (run_id, cavity, continuity, hypot, laser, laser_reason,
				 continuity_record, hypot_record, errors_json, started_at, finished_at, duration_ms)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID, c.Number,
				string(c.Continuity), string(c.Hypot), string(c.Laser), c.LaserReason,
				c.ContinuityRecord, c.HypotRecord, string(errorsJSON),
				formatTime(c.StartedAt), formatTime(c.FinishedAt),
				c.Duration().Milliseconds(),
			); err != nil {
				return fmt.Errorf("insert cavity %d: %w", c.Number, err)
			}
		}
		return tx.Commit()
	})
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, started_at, finished_at, fault, stopped, passed, failed, disabled, duration_ms
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			summary           RunSummary
			started, finished string
			fault, stopped    int
			durationMS        int64
		)
		if err := rows.Scan(&summary.ID, &started, &finished, &fault, &stopped,
			&summary.Passed, &summary.Failed, &summary.Disabled, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summary.StartedAt = parseTime(started)
		summary.FinishedAt = parseTime(finished)
		summary.Fault = fault != 0
		summary.Stopped = stopped != 0
		summary.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Run loads a stored run by id or unique id prefix.
func (s *Store) Run(ctx context.Context, idOrPrefix string) (outcome.Report, error) {
	ctx = ensureContext(ctx)
	if idOrPrefix == "" {
		return outcome.Report{}, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, fault, stopped FROM runs
		 WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		idOrPrefix, idOrPrefix+"%", idOrPrefix)
	if err != nil {
		return outcome.Report{}, fmt.Errorf("find run: %w", err)
	}
	var matches []outcome.Report
	for rows.Next() {
		var (
			report            outcome.Report
			started, finished string
			fault, stopped    int
		)
		if err := rows.Scan(&report.RunID, &started, &finished, &fault, &stopped); err != nil {
			rows.Close()
			return outcome.Report{}, fmt.Errorf("scan run: %w", err)
		}
		report.StartedAt = parseTime(started)
		report.FinishedAt = parseTime(finished)
		report.Fault = fault != 0
		report.Stopped = stopped != 0
		matches = append(matches, report)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return outcome.Report{}, err
	}

	switch {
	case len(matches) == 0:
		return outcome.Report{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case len(matches) > 1 && matches[0].RunID != idOrPrefix:
		return outcome.Report{}, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}
	report := matches[0]
	cavities, err := s.cavities(ctx, report.RunID)
	if err != nil {
		return outcome.Report{}, err
	}
	report.Cavities = cavities
	return report, nil
}

func (s *Store) cavities(ctx context.Context, runID string) ([]outcome.Cavity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cavity, continuity, hypot, laser, laser_reason, continuity_record, hypot_record,
		 errors_json, started_at, finished_at
		 FROM cavity_results WHERE run_id = ? ORDER BY cavity`, runID)
	if err != nil {
		return nil, fmt.Errorf("load cavities: %w", err)
	}
	defer rows.Close()

	var out []outcome.Cavity
	for rows.Next() {
		var (
			c                                 outcome.Cavity
			continuity, hypot, laser          string
			reason, contRecord, hypotRecord   sql.NullString
			errorsJSON, startedAt, finishedAt sql.NullString
		)
		if err := rows.Scan(&c.Number, &continuity, &hypot, &laser, &reason, &contRecord, &hypotRecord,
			&errorsJSON, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan cavity: %w", err)
		}
		c.Continuity = outcome.Outcome(continuity)
		c.Hypot = outcome.Outcome(hypot)
		c.Laser = outcome.Laser(laser)
		c.LaserReason = reason.String
		c.ContinuityRecord = contRecord.String
		c.HypotRecord = hypotRecord.String
		if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &c.Errors); err != nil {
				return nil, fmt.Errorf("decode cavity %d errors: %w", c.Number, err)
			}
		}
		c.StartedAt = parseTime(startedAt.String)
		c.FinishedAt = parseTime(finishedAt.String)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CycleDurations returns the per-cavity test durations, in seconds, of every
// cavity that ran since the given time.
func (s *Store) CycleDurations(ctx context.Context, since time.Time) ([]float64, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.duration_ms FROM cavity_results c JOIN runs r ON r.id = c.run_id
		 WHERE r.started_at >= ? AND c.continuity NOT IN ('disabled', 'unset') AND c.duration_ms > 0
		 ORDER BY r.started_at, c.cavity`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("load durations: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		out = append(out, float64(ms)/1000)
	}
	return out, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
