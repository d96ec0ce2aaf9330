package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateParameters("continuity", c.Continuity); err != nil {
		return err
	}
	if err := c.validateParameters("hypot", c.Hypot); err != nil {
		return err
	}
	if err := c.validateHardware(); err != nil {
		return err
	}
	if err := c.validateLaser(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateParameters(section string, p TestParameters) error {
	if p.Voltage <= 0 {
		return fmt.Errorf("%s.voltage must be positive", section)
	}
	if p.CurrentHighLimit < p.CurrentLowLimit {
		return fmt.Errorf("%s.current_high_limit must not be below current_low_limit", section)
	}
	if p.RampUpTime < 0 || p.RampDownTime < 0 || p.DwellTime < 0 {
		return fmt.Errorf("%s ramp and dwell times must not be negative", section)
	}
	if p.Frequency != 50 && p.Frequency != 60 {
		return fmt.Errorf("%s.frequency must be 50 or 60", section)
	}
	if p.ResistanceHighLimit < p.ResistanceLowLimit {
		return fmt.Errorf("%s.resistance_high_limit must not be below resistance_low_limit", section)
	}
	return nil
}

func (c *Config) validateHardware() error {
	if c.Hardware.Simulate {
		return nil
	}
	if c.Hardware.Instrument1 == "" {
		return errors.New("hardware.instrument1 must be set unless hardware.simulate is true")
	}
	if c.Hardware.Switch1 == "" || c.Hardware.Switch2 == "" {
		return errors.New("hardware.switch1 and hardware.switch2 must be set unless hardware.simulate is true")
	}
	return nil
}

func (c *Config) validateLaser() error {
	if c.Laser.Address == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Laser.Address); err != nil {
		return fmt.Errorf("laser.address %q: %w", c.Laser.Address, err)
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.Timing.SettleDelayMS < 0 {
		return errors.New("timing.settle_delay_ms must not be negative")
	}
	if c.Timing.PollTimeoutSeconds < 0 {
		return errors.New("timing.poll_timeout_seconds must not be negative")
	}
	if c.Timing.ResetCooldownMS < 0 {
		return errors.New("timing.reset_cooldown_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
