package config

const (
	defaultStateDir             = "~/.local/share/hipot"
	defaultLogDir               = "~/.local/share/hipot/logs"
	defaultLogRetentionDays     = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultAdminPassword        = "6789"
	defaultProgramName          = "IviTest"
	defaultInstrumentIdentifier = "AQ03JGPEA"
	defaultSwitch1Identifier    = "B0007EEKA"
	defaultSwitch2Identifier    = "B0007BEKA"
	defaultInstrumentBaud       = 38400
	defaultSwitchBaud           = 9600
	defaultCommandTimeoutMS     = 3000
	defaultLaserAddress         = "127.0.0.1:50000"
	defaultLaserBlock           = 1
	defaultLaserMarking         = "80,1500,70"
	defaultLaserTimeoutMS       = 5000
	defaultSettleDelayMS        = 1000
	defaultPollIntervalMS       = 100
	defaultPollTimeoutSeconds   = 120
	defaultResetCooldownMS      = 1000
	defaultEmergencyStopMS      = 2000
	defaultNotifyTimeoutSeconds = 10
)

// defaultTestParameters mirrors the ACW step the station has always
// programmed into the instrument.
func defaultTestParameters(continuity bool) TestParameters {
	return TestParameters{
		Voltage:             1240,
		CurrentHighLimit:    20,
		CurrentLowLimit:     0,
		RampUpTime:          0.1,
		DwellTime:           0,
		RampDownTime:        2,
		ArcSenseLevel:       5,
		ArcDetection:        true,
		Frequency:           60,
		ContinuityTest:      continuity,
		ResistanceHighLimit: 1.5,
		ResistanceLowLimit:  0,
		ResistanceOffset:    0.5,
	}
}

func defaultCavityFlags() map[string]bool {
	flags := make(map[string]bool, CavityCount)
	for n := 1; n <= CavityCount; n++ {
		flags[cavityKey(n)] = true
	}
	return flags
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Admin: Admin{
			Password: defaultAdminPassword,
		},
		RunCavity:    defaultCavityFlags(),
		LaserEnabled: defaultCavityFlags(),
		Continuity:   defaultTestParameters(true),
		Hypot:        defaultTestParameters(false),
		Programs: Programs{
			Continuity: defaultProgramName,
			Hypot:      defaultProgramName,
		},
		Hardware: Hardware{
			Instrument1:      defaultInstrumentIdentifier,
			Switch1:          defaultSwitch1Identifier,
			Switch2:          defaultSwitch2Identifier,
			InstrumentBaud:   defaultInstrumentBaud,
			SwitchBaud:       defaultSwitchBaud,
			CommandTimeoutMS: defaultCommandTimeoutMS,
		},
		Laser: Laser{
			Address:           defaultLaserAddress,
			Block:             defaultLaserBlock,
			MarkingParameters: defaultLaserMarking,
			TimeoutMS:         defaultLaserTimeoutMS,
		},
		Timing: Timing{
			SettleDelayMS:          defaultSettleDelayMS,
			PollIntervalMS:         defaultPollIntervalMS,
			PollTimeoutSeconds:     defaultPollTimeoutSeconds,
			ResetCooldownMS:        defaultResetCooldownMS,
			EmergencyStopTimeoutMS: defaultEmergencyStopMS,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
