package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hipot/internal/report"
	"hipot/internal/testsupport"
)

func seedRuns(t *testing.T, env *cliTestEnv) {
	t.Helper()
	now := time.Now()
	testsupport.MustRecord(t, env.station.Store, testsupport.NewReport("aaaa1111-run", now.Add(-2*time.Hour)))
	testsupport.MustRecord(t, env.station.Store, testsupport.NewReport("bbbb2222-run", now.Add(-time.Hour), 4))
	testsupport.MustRecord(t, env.station.Store, testsupport.NewReport("old00000-run", now.Add(-60*24*time.Hour)))
}

func TestRunsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	seedRuns(t, env)

	out, _, err := runCLI(t, []string{"runs", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "aaaa1111")
	requireContains(t, out, "FAULT")

	out, _, err = runCLI(t, []string{"runs", "show", "bbbb"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, "Run bbbb2222-run  FAULT")

	_, _, err = runCLI(t, []string{"runs", "show", "zzzz"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunsExportStatsAndPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	seedRuns(t, env)

	target := filepath.Join(t.TempDir(), "runs.xlsx")
	out, _, err := runCLI(t, []string{"runs", "export", "--xlsx", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs export: %v", err)
	}
	requireContains(t, out, "Exported 3 runs")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected workbook: %v", err)
	}

	out, _, err = runCLI(t, []string{"runs", "stats", "-o", "json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs stats: %v", err)
	}
	var stats report.CycleStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.Count == 0 {
		t.Fatalf("expected cycle samples, got %+v", stats)
	}

	out, _, err = runCLI(t, []string{"runs", "prune", "--older-than", "720h"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs prune: %v", err)
	}
	requireContains(t, out, "Removed 1 runs")

	_, _, err = runCLI(t, []string{"runs", "prune"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected prune without cutoff to fail")
	}
}

func TestRunsWithoutHistoryDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := testsupport.WriteConfig(t, cfg)
	socket := filepath.Join(t.TempDir(), "missing.sock")

	out, _, err := runCLI(t, []string{"runs", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	out, _, err = runCLI(t, []string{"runs", "stats"}, socket, configPath)
	if err != nil {
		t.Fatalf("runs stats: %v", err)
	}
	requireContains(t, out, "No tested cavities in range")

	if _, _, err := runCLI(t, []string{"runs", "show", "abc"}, socket, configPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.StateDir, "history.db")); !os.IsNotExist(err) {
		t.Fatalf("read-only commands created the database: %v", err)
	}
}
