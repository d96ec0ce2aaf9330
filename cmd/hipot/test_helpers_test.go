package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hipot/internal/config"
	"hipot/internal/daemon"
	"hipot/internal/daemonrun"
	"hipot/internal/ipc"
	"hipot/internal/logging"
	"hipot/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	station    *daemonrun.Station
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	exits      chan int
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	t.Setenv("HIPOT_ADMIN_PASSWORD", "")
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := testsupport.WriteConfig(t, cfg)

	logger := logging.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	exits := make(chan int, 1)
	st, err := daemonrun.Assemble(ctx, cfg, nil, func(code int) { exits <- code }, logger)
	if err != nil {
		cancel()
		t.Fatalf("Assemble: %v", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:       cfg,
		ConfigPath:   configPath,
		Orchestrator: st.Orchestrator,
		Store:        st.Store,
		Logger:       logger,
	})
	if err != nil {
		cancel()
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}

	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		station:    st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		exits:      exits,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
		_ = st.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, socket, configPath, nil)
}

func runCLIWithInput(t *testing.T, args []string, socket, configPath string, stdin io.Reader) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// waitForReport blocks until the daemon holds a finished batch report.
func (e *cliTestEnv) waitForReport(t *testing.T) {
	t.Helper()
	waitFor(t, 5*time.Second, func() bool {
		status := e.daemon.Status(context.Background())
		_, ok := e.daemon.LastReport()
		return ok && !status.Batch.Running
	})
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
