package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Save writes cfg to path, replacing the file atomically so a watching daemon
// never reads a partial document.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("save config: nil config")
	}
	out := *cfg
	keepFileSecrets(path, &out)
	data, err := toml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".hipot-config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// keepFileSecrets restores the on-disk admin password and API token when the
// loaded values came from the environment, so Save never writes them out.
func keepFileSecrets(path string, cfg *Config) {
	_, passwordFromEnv := lookupEnv(envAdminPassword)
	_, tokenFromEnv := lookupEnv(envAPIToken)
	if !passwordFromEnv && !tokenFromEnv {
		return
	}
	var onDisk struct {
		Paths struct {
			APIToken string `toml:"api_token"`
		} `toml:"paths"`
		Admin struct {
			Password string `toml:"password"`
		} `toml:"admin"`
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &onDisk)
	}
	if passwordFromEnv {
		cfg.Admin.Password = onDisk.Admin.Password
	}
	if tokenFromEnv {
		cfg.Paths.APIToken = onDisk.Paths.APIToken
	}
}
