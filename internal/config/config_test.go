package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hipot/internal/config"
	"hipot/internal/station"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HIPOT_ADMIN_PASSWORD", "HIPOT_API_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hipot.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	isolateEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "hipot")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.SocketPath() != filepath.Join(wantState, "hipot.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if cfg.Admin.Password != "6789" {
		t.Fatalf("unexpected admin password default %q", cfg.Admin.Password)
	}
	if cfg.Laser.Address != "127.0.0.1:50000" {
		t.Fatalf("unexpected laser address %q", cfg.Laser.Address)
	}
	if cfg.PollInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if cfg.PollTimeout() != 120*time.Second {
		t.Fatalf("unexpected poll timeout %s", cfg.PollTimeout())
	}
	for _, cavity := range cfg.Cavities() {
		if !cavity.RunEnabled || !cavity.LaserEnabled {
			t.Fatalf("expected cavity %d enabled by default", cavity.Number)
		}
	}
	if !cfg.Continuity.ContinuityTest || cfg.Hypot.ContinuityTest {
		t.Fatalf("unexpected continuity flags: continuity=%v hypot=%v", cfg.Continuity.ContinuityTest, cfg.Hypot.ContinuityTest)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", cfg.Warnings)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadRecoversMalformedValues(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
[continuity]
voltage = "abc"
frequency = "50"
arc_detection = "True"
ramp_up_time = 1

[hypot]
voltage = 1500.5
bogus = 3

[run_cavity]
cavity3 = 0
cavity4 = "sometimes"
cavity5 = "0"

[laser_enabled]
cavity7 = false
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if cfg.Continuity.Voltage != 1240 {
		t.Fatalf("expected default voltage after malformed value, got %v", cfg.Continuity.Voltage)
	}
	if cfg.Continuity.Frequency != 50 {
		t.Fatalf("expected numeric string frequency to be accepted, got %d", cfg.Continuity.Frequency)
	}
	if !cfg.Continuity.ArcDetection {
		t.Fatal("expected arc detection true")
	}
	if cfg.Continuity.RampUpTime != 1 {
		t.Fatalf("expected integer ramp up time to coerce, got %v", cfg.Continuity.RampUpTime)
	}
	if cfg.Hypot.Voltage != 1500.5 {
		t.Fatalf("unexpected hypot voltage %v", cfg.Hypot.Voltage)
	}
	if cfg.Cavity(3).RunEnabled {
		t.Fatal("expected cavity 3 disabled by integer flag")
	}
	if !cfg.Cavity(4).RunEnabled {
		t.Fatal("expected cavity 4 to keep enabled default")
	}
	if cfg.Cavity(5).RunEnabled {
		t.Fatal("expected cavity 5 disabled by string flag")
	}
	if cfg.Cavity(7).LaserEnabled || !cfg.Cavity(7).RunEnabled {
		t.Fatalf("unexpected cavity 7 flags %+v", cfg.Cavity(7))
	}

	if len(cfg.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(cfg.Warnings), cfg.Warnings)
	}
	joined := ""
	for _, w := range cfg.Warnings {
		if !errors.Is(w, station.ErrConfig) {
			t.Fatalf("expected config marker on warning %v", w)
		}
		joined += w.Error() + "\n"
	}
	for _, fragment := range []string{"continuity.voltage", "hypot.bogus", "run_cavity.cavity4"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected warning mentioning %q, got %s", fragment, joined)
		}
	}
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	isolateEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"log format", "[logging]\nformat = \"xml\"\n"},
		{"frequency", "[hypot]\nfrequency = 55\n"},
		{"laser address", "[laser]\naddress = \"nohostport\"\n"},
		{"hardware", "[hardware]\ninstrument1 = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := config.Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvFileOverridesAdminPassword(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "[admin]\npassword = \"1234\"\n")
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte("HIPOT_ADMIN_PASSWORD=4321\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Admin.Password != "4321" {
		t.Fatalf("expected env password, got %q", cfg.Admin.Password)
	}
}

func TestSaveRoundTripsCavityFlags(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "hipot.toml")
	cfg := config.Default()
	if err := cfg.SetCavity(2, false, true); err != nil {
		t.Fatalf("SetCavity: %v", err)
	}
	if err := cfg.SetCavity(11, true, true); err == nil {
		t.Fatal("expected out of range cavity to fail")
	}
	if err := config.Save(path, &cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected saved config to exist")
	}
	if got := loaded.Cavity(2); got.RunEnabled || !got.LaserEnabled {
		t.Fatalf("unexpected cavity 2 flags %+v", got)
	}
	if !loaded.Cavity(1).RunEnabled {
		t.Fatal("expected cavity 1 to stay enabled")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "hipot.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists || len(cfg.Warnings) != 0 {
		t.Fatalf("unexpected sample load result exists=%v warnings=%v", exists, cfg.Warnings)
	}
}

func TestWatchReloadsAfterSave(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "hipot.toml")
	cfg := config.Default()
	if err := config.Save(path, &cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *config.Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, path, func(c *config.Config) { changes <- c }, nil)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := cfg.SetCavity(9, false, false); err != nil {
		t.Fatalf("SetCavity: %v", err)
	}
	if err := config.Save(path, &cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case reloaded := <-changes:
		if reloaded.Cavity(9).RunEnabled {
			t.Fatal("expected reloaded config to disable cavity 9")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
}

func TestSaveKeepsFilePasswordUnderEnvOverride(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "[admin]\npassword = \"1234\"\n")
	t.Setenv("HIPOT_ADMIN_PASSWORD", "4321")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.SetCavity(4, false, false); err != nil {
		t.Fatalf("SetCavity: %v", err)
	}
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if strings.Contains(string(data), "4321") {
		t.Fatalf("env password written to config:\n%s", data)
	}
	if !strings.Contains(string(data), "1234") {
		t.Fatalf("file password lost on save:\n%s", data)
	}
}

func TestNotificationDefaults(t *testing.T) {
	isolateEnv(t)
	cfg, _, _, err := config.Load(writeConfig(t, "[notifications]\nntfy_topic = \" https://ntfy.sh/line4 \"\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/line4" {
		t.Fatalf("topic not trimmed: %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.NotificationTimeout() != 10*time.Second {
		t.Fatalf("unexpected notification timeout %s", cfg.NotificationTimeout())
	}
	if cfg.Notifications.NotifyPass {
		t.Fatal("notify_pass should default to false")
	}
}
