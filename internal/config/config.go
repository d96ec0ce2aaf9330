package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hipot/internal/channelmap"
)

//go:embed sample_config.toml
var sampleConfig string

// CavityCount is the number of fixture positions on the station.
const CavityCount = channelmap.CavityCount

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Admin contains the operator settings gate.
type Admin struct {
	Password string `toml:"password"`
}

// TestParameters holds the thirteen values programmed into an ACW test step.
type TestParameters struct {
	Voltage             float64 `toml:"voltage"`
	CurrentHighLimit    float64 `toml:"current_high_limit"`
	CurrentLowLimit     float64 `toml:"current_low_limit"`
	RampUpTime          float64 `toml:"ramp_up_time"`
	DwellTime           float64 `toml:"dwell_time"`
	RampDownTime        float64 `toml:"ramp_down_time"`
	ArcSenseLevel       float64 `toml:"arc_sense_level"`
	ArcDetection        bool    `toml:"arc_detection"`
	Frequency           int     `toml:"frequency"`
	ContinuityTest      bool    `toml:"continuity_test"`
	ResistanceHighLimit float64 `toml:"resistance_high_limit"`
	ResistanceLowLimit  float64 `toml:"resistance_low_limit"`
	ResistanceOffset    float64 `toml:"resistance_offset"`
}

// Programs names the instrument files created for each test kind.
type Programs struct {
	Continuity string `toml:"continuity"`
	Hypot      string `toml:"hypot"`
}

// Hardware identifies the serial devices that make up the two banks.
//
// Identifiers are USB serial numbers matched against udev properties, or a
// literal /dev path. An empty Instrument2 makes bank 2 share the bank 1
// instrument session.
type Hardware struct {
	Simulate         bool   `toml:"simulate"`
	Instrument1      string `toml:"instrument1"`
	Instrument2      string `toml:"instrument2"`
	Switch1          string `toml:"switch1"`
	Switch2          string `toml:"switch2"`
	InstrumentBaud   int    `toml:"instrument_baud"`
	SwitchBaud       int    `toml:"switch_baud"`
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
}

// Laser contains the marker socket settings.
type Laser struct {
	Address           string `toml:"address"`
	Block             int    `toml:"block"`
	MarkingParameters string `toml:"marking_parameters"`
	TimeoutMS         int    `toml:"timeout_ms"`
}

// Timing contains sequencing delays and bounds.
type Timing struct {
	SettleDelayMS          int `toml:"settle_delay_ms"`
	PollIntervalMS         int `toml:"poll_interval_ms"`
	PollTimeoutSeconds     int `toml:"poll_timeout_seconds"`
	ResetCooldownMS        int `toml:"reset_cooldown_ms"`
	EmergencyStopTimeoutMS int `toml:"emergency_stop_timeout_ms"`
}

// Notifications contains the ntfy push settings. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyPass            bool   `toml:"notify_pass"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the station.
//
// Configuration sections by subsystem:
//   - Paths: state directory, logs, and the status API bind address
//   - Admin: settings password
//   - RunCavity / LaserEnabled: per-cavity flags keyed cavity1..cavity10
//   - Continuity / Hypot: instrument test parameters
//   - Programs: instrument program names
//   - Hardware: serial identifiers and line settings
//   - Laser: marker socket address and marking block
//   - Timing: settle, poll, reset, and emergency stop bounds
//   - Notifications: ntfy topic for batch results
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths           `toml:"paths"`
	Admin         Admin           `toml:"admin"`
	RunCavity     map[string]bool `toml:"run_cavity"`
	LaserEnabled  map[string]bool `toml:"laser_enabled"`
	Continuity    TestParameters  `toml:"continuity"`
	Hypot         TestParameters  `toml:"hypot"`
	Programs      Programs        `toml:"programs"`
	Hardware      Hardware        `toml:"hardware"`
	Laser         Laser           `toml:"laser"`
	Timing        Timing          `toml:"timing"`
	Notifications Notifications   `toml:"notifications"`
	Logging       Logging         `toml:"logging"`

	// Warnings lists recoverable problems found while loading. Each entry
	// wraps station.ErrConfig.
	Warnings []error `toml:"-"`
}

// CavitySettings is the per-cavity view of the run and laser flags.
type CavitySettings struct {
	Number       int  `json:"number" yaml:"number"`
	RunEnabled   bool `json:"run_enabled" yaml:"run_enabled"`
	LaserEnabled bool `json:"laser_enabled" yaml:"laser_enabled"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hipot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadEnvFile(resolvedPath)

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		warnings, err := decodeLenient(data, &cfg)
		if err != nil {
			return nil, "", false, err
		}
		cfg.Warnings = warnings
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hipot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Cavity returns the flags for cavity n. Unknown cavities report disabled.
func (c *Config) Cavity(n int) CavitySettings {
	if n < 1 || n > CavityCount {
		return CavitySettings{Number: n}
	}
	key := cavityKey(n)
	return CavitySettings{
		Number:       n,
		RunEnabled:   c.RunCavity[key],
		LaserEnabled: c.LaserEnabled[key],
	}
}

// Cavities returns the flags for every cavity in ascending order.
func (c *Config) Cavities() []CavitySettings {
	out := make([]CavitySettings, 0, CavityCount)
	for n := 1; n <= CavityCount; n++ {
		out = append(out, c.Cavity(n))
	}
	return out
}

// SetCavity updates the flags for cavity n.
func (c *Config) SetCavity(n int, runEnabled, laserEnabled bool) error {
	if n < 1 || n > CavityCount {
		return fmt.Errorf("cavity %d out of range 1-%d", n, CavityCount)
	}
	if c.RunCavity == nil {
		c.RunCavity = defaultCavityFlags()
	}
	if c.LaserEnabled == nil {
		c.LaserEnabled = defaultCavityFlags()
	}
	key := cavityKey(n)
	c.RunCavity[key] = runEnabled
	c.LaserEnabled[key] = laserEnabled
	return nil
}

// StatePath joins name onto the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.Paths.StateDir, name)
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string { return c.StatePath("hipot.sock") }

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string { return c.StatePath("hipot.lock") }

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string { return c.StatePath("hipot.pid") }

// HistoryPath returns the run history database file.
func (c *Config) HistoryPath() string { return c.StatePath("history.db") }

// SettleDelay is the pause after reconfiguring switch channels.
func (c *Config) SettleDelay() time.Duration { return ms(c.Timing.SettleDelayMS) }

// PollInterval is the pause between completion polls.
func (c *Config) PollInterval() time.Duration { return ms(c.Timing.PollIntervalMS) }

// PollTimeout bounds one completion wait. Zero means unbounded.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Timing.PollTimeoutSeconds) * time.Second
}

// ResetCooldown is the pause after Reset before Start is accepted again.
func (c *Config) ResetCooldown() time.Duration { return ms(c.Timing.ResetCooldownMS) }

// EmergencyStopTimeout bounds each best-effort disable during an emergency stop.
func (c *Config) EmergencyStopTimeout() time.Duration { return ms(c.Timing.EmergencyStopTimeoutMS) }

// CommandTimeout bounds a single serial exchange.
func (c *Config) CommandTimeout() time.Duration { return ms(c.Hardware.CommandTimeoutMS) }

// LaserTimeout bounds a single laser socket exchange.
func (c *Config) LaserTimeout() time.Duration { return ms(c.Laser.TimeoutMS) }

// NotificationTimeout bounds one ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func cavityKey(n int) string {
	return "cavity" + strconv.Itoa(n)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
