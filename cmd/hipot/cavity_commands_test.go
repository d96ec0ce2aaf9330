package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hipot/internal/config"
)

func TestCavitySetRequiresPassword(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"cavity", "set", "3", "--run=false", "--password", "0000"}, env.socketPath, env.configPath)
	if !errors.Is(err, errBadPassword) {
		t.Fatalf("expected password rejection, got %v", err)
	}

	out, _, err := runCLI(t, []string{"cavity", "set", "3", "--run=false", "--password", "6789"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cavity set: %v", err)
	}
	requireContains(t, out, "Saved cavity settings")

	saved, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	got := saved.Cavity(3)
	if got.RunEnabled || !got.LaserEnabled {
		t.Fatalf("cavity 3 = %+v, want run disabled and laser kept", got)
	}

	waitFor(t, 5*time.Second, func() bool {
		settings := env.daemon.Status(context.Background()).Batch.Settings
		return len(settings) == config.CavityCount && !settings[2].RunEnabled
	})
}

func TestCavitySetValidatesArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "out of range", args: []string{"cavity", "set", "11", "--run=false", "--password", "6789"}, want: "invalid cavity"},
		{name: "not a number", args: []string{"cavity", "set", "x", "--run=false", "--password", "6789"}, want: "invalid cavity"},
		{name: "no flags", args: []string{"cavity", "set", "2", "--password", "6789"}, want: "nothing to change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args, env.socketPath, env.configPath)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCavityToggleAllPromptsForPassword(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, err := runCLIWithInput(t, []string{"cavity", "toggle-all", "--laser"}, env.socketPath, env.configPath, strings.NewReader("6789\n"))
	if err != nil {
		t.Fatalf("toggle-all: %v", err)
	}
	requireContains(t, stderr, "Admin password:")

	saved, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	for _, s := range saved.Cavities() {
		if !s.RunEnabled || s.LaserEnabled {
			t.Fatalf("cavity %d = %+v, want run kept and laser toggled off", s.Number, s)
		}
	}

	_, _, err = runCLIWithInput(t, []string{"cavity", "toggle-all"}, env.socketPath, env.configPath, strings.NewReader("6789\n"))
	if err == nil || !strings.Contains(err.Error(), "choose --run") {
		t.Fatalf("expected flag error, got %v", err)
	}
}

func TestCavityList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cavity", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cavity list: %v", err)
	}
	requireContains(t, out, "Bank")
	requireContains(t, out, "10")
}
