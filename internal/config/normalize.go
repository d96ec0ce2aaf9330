package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAdmin()
	c.normalizeCavities()
	c.normalizePrograms()
	c.normalizeHardware()
	c.normalizeLaser()
	c.normalizeTiming()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := lookupEnv(envAPIToken); ok {
			c.Paths.APIToken = value
		}
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeAdmin() {
	if value, ok := lookupEnv(envAdminPassword); ok {
		c.Admin.Password = value
	}
	c.Admin.Password = strings.TrimSpace(c.Admin.Password)
	if c.Admin.Password == "" {
		c.Admin.Password = defaultAdminPassword
	}
}

func (c *Config) normalizeCavities() {
	if c.RunCavity == nil {
		c.RunCavity = make(map[string]bool, CavityCount)
	}
	if c.LaserEnabled == nil {
		c.LaserEnabled = make(map[string]bool, CavityCount)
	}
	for n := 1; n <= CavityCount; n++ {
		key := cavityKey(n)
		if _, ok := c.RunCavity[key]; !ok {
			c.RunCavity[key] = true
		}
		if _, ok := c.LaserEnabled[key]; !ok {
			c.LaserEnabled[key] = true
		}
	}
	for key := range c.RunCavity {
		if !validCavityKey(key) {
			delete(c.RunCavity, key)
		}
	}
	for key := range c.LaserEnabled {
		if !validCavityKey(key) {
			delete(c.LaserEnabled, key)
		}
	}
}

func (c *Config) normalizePrograms() {
	c.Programs.Continuity = strings.TrimSpace(c.Programs.Continuity)
	if c.Programs.Continuity == "" {
		c.Programs.Continuity = defaultProgramName
	}
	c.Programs.Hypot = strings.TrimSpace(c.Programs.Hypot)
	if c.Programs.Hypot == "" {
		c.Programs.Hypot = defaultProgramName
	}
}

func (c *Config) normalizeHardware() {
	c.Hardware.Instrument1 = strings.TrimSpace(c.Hardware.Instrument1)
	c.Hardware.Instrument2 = strings.TrimSpace(c.Hardware.Instrument2)
	c.Hardware.Switch1 = strings.TrimSpace(c.Hardware.Switch1)
	c.Hardware.Switch2 = strings.TrimSpace(c.Hardware.Switch2)
	if c.Hardware.InstrumentBaud <= 0 {
		c.Hardware.InstrumentBaud = defaultInstrumentBaud
	}
	if c.Hardware.SwitchBaud <= 0 {
		c.Hardware.SwitchBaud = defaultSwitchBaud
	}
	if c.Hardware.CommandTimeoutMS <= 0 {
		c.Hardware.CommandTimeoutMS = defaultCommandTimeoutMS
	}
}

func (c *Config) normalizeLaser() {
	c.Laser.Address = strings.TrimSpace(c.Laser.Address)
	c.Laser.MarkingParameters = strings.TrimSpace(c.Laser.MarkingParameters)
	if c.Laser.Block <= 0 {
		c.Laser.Block = defaultLaserBlock
	}
	if c.Laser.TimeoutMS <= 0 {
		c.Laser.TimeoutMS = defaultLaserTimeoutMS
	}
}

func (c *Config) normalizeTiming() {
	if c.Timing.PollIntervalMS <= 0 {
		c.Timing.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Timing.EmergencyStopTimeoutMS <= 0 {
		c.Timing.EmergencyStopTimeoutMS = defaultEmergencyStopMS
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
