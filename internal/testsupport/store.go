package testsupport

import (
	"context"
	"testing"
	"time"

	"hipot/internal/config"
	"hipot/internal/history"
	"hipot/internal/outcome"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewReport builds a ten-cavity report. Cavities listed in failed fail
// continuity; every other cavity passes both tests in one second.
func NewReport(id string, started time.Time, failed ...int) outcome.Report {
	report := outcome.Report{RunID: id, StartedAt: started}
	at := started
	for n := 1; n <= config.CavityCount; n++ {
		c := outcome.NewCavity(n)
		c.StartedAt = at
		at = at.Add(time.Second)
		c.FinishedAt = at
		c.Continuity, c.Hypot, c.Laser = outcome.Pass, outcome.Pass, outcome.LaserMarked
		c.ContinuityRecord = "01,ACW,PASS,1.240kV,0.050mA"
		c.HypotRecord = "01,ACW,PASS,1.240kV,0.050mA"
		for _, f := range failed {
			if f == n {
				c.Continuity, c.Hypot, c.Laser = outcome.Fail, outcome.Skipped, outcome.LaserSkipped
				c.ContinuityRecord = "01,ACW,FAIL,1.240kV,0.050mA"
				c.HypotRecord = ""
				report.Fault = true
			}
		}
		report.Cavities = append(report.Cavities, c)
	}
	report.FinishedAt = at
	return report
}

// MustRecord stores report and fails the test on error.
func MustRecord(t testing.TB, store *history.Store, report outcome.Report) {
	t.Helper()
	if err := store.RecordRun(context.Background(), report); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
}
