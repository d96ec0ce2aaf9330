package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"hipot/internal/config"
	"hipot/internal/ipc"
)

// noConfigAnnotation marks commands that must run without loading the
// station config (they inspect or create it themselves).
const noConfigAnnotation = "hipot/no-config"

var noConfig = map[string]string{noConfigAnnotation: "true"}

// commandContext carries the persistent flags and the config, loaded once on
// first use.
type commandContext struct {
	socketFlag string
	configFlag string

	load       sync.Once
	cfg        *config.Config
	configPath string
	loadErr    error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, resolved, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.loadErr = err
			return
		}
		c.cfg, c.configPath = cfg, resolved
	})
	return c.cfg, c.loadErr
}

// socketPath prefers --socket, then the configured state directory, then the
// default state directory when the config cannot be loaded.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socketFlag); socket != "" {
		return socket
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.SocketPath()
	}
	if dir, err := config.ExpandPath("~/.local/share/hipot"); err == nil {
		return filepath.Join(dir, "hipot.sock")
	}
	return filepath.Join(os.TempDir(), "hipot.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialError(socket, err)
	}
	defer client.Close()
	return fn(client)
}

func dialError(socket string, err error) error {
	if errors.Is(err, syscall.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no daemon socket at %s (not found); start the station with `hipot daemon`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("daemon socket %s refused the connection; is the daemon still running?", socket)
	}
	return fmt.Errorf("connect to daemon at %s: %w", socket, err)
}

func needsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[noConfigAnnotation] == "true" {
			return false
		}
	}
	return true
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
