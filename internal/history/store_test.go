package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hipot/internal/history"
	"hipot/internal/outcome"
	"hipot/internal/testsupport"
)

func TestRecordAndLoadRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	report := testsupport.NewReport("run-aaaa-1", started, 4)
	report.Cavities[3].Errors = []string{"device error: instrument1: execute"}
	testsupport.MustRecord(t, store, report)

	loaded, err := store.Run(ctx, "run-aaaa-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !loaded.Fault || loaded.Stopped {
		t.Fatalf("unexpected flags %+v", loaded)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Fatalf("started at %v, want %v", loaded.StartedAt, started)
	}
	if len(loaded.Cavities) != 10 {
		t.Fatalf("expected 10 cavities, got %d", len(loaded.Cavities))
	}
	c := loaded.Cavities[3]
	if c.Number != 4 || c.Continuity != outcome.Fail || c.Hypot != outcome.Skipped {
		t.Fatalf("cavity 4 = %+v", c)
	}
	if len(c.Errors) != 1 || c.ContinuityRecord == "" {
		t.Fatalf("cavity 4 details lost: %+v", c)
	}
	if c.Duration() != time.Second {
		t.Fatalf("cavity duration %v", c.Duration())
	}
}

func TestRecordRunReplacesExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	started := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	testsupport.MustRecord(t, store, testsupport.NewReport("run-1", started, 2))
	testsupport.MustRecord(t, store, testsupport.NewReport("run-1", started))

	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Fault {
		t.Fatalf("expected one passing run, got %+v", runs)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	testsupport.MustRecord(t, store, testsupport.NewReport("first", base))
	testsupport.MustRecord(t, store, testsupport.NewReport("second", base.Add(time.Hour), 1, 2))
	testsupport.MustRecord(t, store, testsupport.NewReport("third", base.Add(2*time.Hour)))

	runs, err := store.ListRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "third" || runs[1].ID != "second" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[1].Failed != 2 || runs[1].Passed != 8 || !runs[1].Fault {
		t.Fatalf("unexpected counts %+v", runs[1])
	}
	if runs[0].Duration != 10*time.Second {
		t.Fatalf("duration %v", runs[0].Duration)
	}
}

func TestRunPrefixLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	testsupport.MustRecord(t, store, testsupport.NewReport("abc123", base))
	testsupport.MustRecord(t, store, testsupport.NewReport("abd456", base.Add(time.Minute)))

	ctx := context.Background()
	report, err := store.Run(ctx, "abc")
	if err != nil || report.RunID != "abc123" {
		t.Fatalf("prefix lookup: %v %q", err, report.RunID)
	}
	if _, err := store.Run(ctx, "ab"); !errors.Is(err, history.ErrAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
	if _, err := store.Run(ctx, "zzz"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCycleDurationsSkipsDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	report := testsupport.NewReport("run", base)
	report.Cavities[9].Continuity = outcome.Disabled
	report.Cavities[9].Hypot = outcome.Disabled
	testsupport.MustRecord(t, store, report)
	testsupport.MustRecord(t, store, testsupport.NewReport("old", base.Add(-48*time.Hour)))

	durations, err := store.CycleDurations(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CycleDurations: %v", err)
	}
	if len(durations) != 9 {
		t.Fatalf("expected 9 durations, got %d", len(durations))
	}
	for _, d := range durations {
		if d != 1 {
			t.Fatalf("unexpected duration %v", d)
		}
	}
}

func TestPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	testsupport.MustRecord(t, store, testsupport.NewReport("old", base.Add(-72*time.Hour)))
	testsupport.MustRecord(t, store, testsupport.NewReport("new", base))

	removed, err := store.Prune(context.Background(), base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d runs", removed)
	}
	if _, err := store.Run(context.Background(), "old"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("pruned run still present: %v", err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustRecord(t, store, testsupport.NewReport("keep", time.Now()))
	if got := store.Path(); got != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected path %q", got)
	}
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Run(context.Background(), "keep"); err != nil {
		t.Fatalf("run lost after reopen: %v", err)
	}
}

func TestOpenReadOnlyMissingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := history.OpenReadOnly(cfg); !errors.Is(err, history.ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestOpenReadOnlySeesRecordedRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writer := testsupport.MustOpenStore(t, cfg)
	testsupport.MustRecord(t, writer, testsupport.NewReport("shared", time.Now()))

	reader, err := history.OpenReadOnly(cfg)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	if _, err := reader.Run(context.Background(), "shared"); err != nil {
		t.Fatalf("Run through read-only handle: %v", err)
	}
	if err := reader.RecordRun(context.Background(), testsupport.NewReport("other", time.Now())); !errors.Is(err, history.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := reader.Prune(context.Background(), time.Now()); !errors.Is(err, history.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Prune, got %v", err)
	}
}
