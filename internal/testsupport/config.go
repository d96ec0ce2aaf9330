package testsupport

import (
	"path/filepath"
	"testing"

	"hipot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a simulated-hardware config seeded with unique temp
// directories per test. Timing is shortened so batches finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Hardware.Simulate = true
	cfgVal.Laser.Address = ""
	cfgVal.Timing.SettleDelayMS = 0
	cfgVal.Timing.PollIntervalMS = 1
	cfgVal.Timing.ResetCooldownMS = 0
	cfgVal.Timing.EmergencyStopTimeoutMS = 200

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithCavity sets the run and laser flags of one cavity.
func WithCavity(n int, runEnabled, laserEnabled bool) ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.SetCavity(n, runEnabled, laserEnabled); err != nil {
			b.t.Fatalf("set cavity %d: %v", n, err)
		}
	}
}

// OnlyCavities disables every cavity not listed.
func OnlyCavities(numbers ...int) ConfigOption {
	return func(b *configBuilder) {
		enabled := make(map[int]bool, len(numbers))
		for _, n := range numbers {
			enabled[n] = true
		}
		for n := 1; n <= config.CavityCount; n++ {
			if err := b.cfg.SetCavity(n, enabled[n], enabled[n]); err != nil {
				b.t.Fatalf("set cavity %d: %v", n, err)
			}
		}
	}
}

// WithLaser points the laser marker at addr.
func WithLaser(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Laser.Address = addr
	}
}

// WriteConfig saves cfg into the test base directory and returns the path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
