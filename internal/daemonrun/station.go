package daemonrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"hipot/internal/batch"
	"hipot/internal/channelmap"
	"hipot/internal/completion"
	"hipot/internal/config"
	"hipot/internal/daemon"
	"hipot/internal/device"
	"hipot/internal/device/scpi"
	"hipot/internal/device/serialport"
	"hipot/internal/device/sim"
	"hipot/internal/history"
	"hipot/internal/laser"
	"hipot/internal/logging"
	"hipot/internal/notifications"
	"hipot/internal/sequencer"
)

// Station holds the assembled test station: device sessions, the laser
// marker, the batch orchestrator, and the run history store.
type Station struct {
	Banks        device.Banks
	Sessions     []daemon.Session
	Laser        *laser.Client
	Orchestrator *batch.Orchestrator
	Store        *history.Store
	// Warnings lists devices that could not be opened.
	Warnings []string

	recorder *notifyingRecorder
}

// portOpener opens a serial session at a resolved device path.
type portOpener func(path string, baud int) (*serialport.Port, error)

// Assemble opens every session the configuration names and builds the
// orchestrator around them. Devices that fail to open are replaced by
// disconnected stand-ins so the station starts degraded instead of not at all.
// exit is called with the process exit code at the end of an emergency stop.
func Assemble(ctx context.Context, cfg *config.Config, resolver daemon.Resolver, exit func(int), logger *slog.Logger) (*Station, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	st := &Station{Store: store}
	if cfg.Hardware.Simulate {
		st.Banks, _, _ = sim.NewBanks(&sim.Journal{})
		logger.Info("using simulated devices",
			logging.String(logging.FieldEventType, "devices_simulated"))
	} else {
		timeout := cfg.CommandTimeout()
		open := func(path string, baud int) (*serialport.Port, error) {
			return serialport.Open(path, baud, timeout)
		}
		st.Banks, st.Sessions, st.Warnings = openBanks(ctx, cfg, resolver, open, logger)
	}

	st.Laser = laser.New(laser.Options{
		Address:           cfg.Laser.Address,
		Block:             cfg.Laser.Block,
		MarkingParameters: cfg.Laser.MarkingParameters,
		Timeout:           cfg.LaserTimeout(),
	}, logger)
	if st.Laser.Enabled() {
		if err := st.Laser.Connect(ctx); err != nil {
			logging.WarnWithContext(logger, "laser marker unavailable", "laser_connect_failed",
				logging.String("address", cfg.Laser.Address),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the marker network link; it reconnects on the next mark"),
				logging.String(logging.FieldImpact, "passing cavities are reported NG until the marker answers"),
			)
			st.Warnings = append(st.Warnings, fmt.Sprintf("laser: %v", err))
		}
	}

	st.recorder = &notifyingRecorder{store: store, notifier: notifications.NewService(cfg), logger: logger}

	var orch *batch.Orchestrator
	seq := sequencer.New(st.Banks, sequencer.Options{
		Continuity:  sequencer.Program{Name: cfg.Programs.Continuity, Parameters: device.TestParameters(cfg.Continuity)},
		Hypot:       sequencer.Program{Name: cfg.Programs.Hypot, Parameters: device.TestParameters(cfg.Hypot)},
		SettleDelay: cfg.SettleDelay(),
		Reader:      completion.New(cfg.PollInterval(), cfg.PollTimeout(), logger),
		Marker:      st.Laser,
		OnStage: func(cavity int, stage sequencer.Stage) {
			orch.ObserveStage(cavity, string(stage))
		},
	}, logger)
	orch = batch.New(batch.Options{
		Banks:         st.Banks,
		Sequencer:     seq,
		Recorder:      st.recorder,
		Cavities:      cfg.Cavities(),
		ResetCooldown: cfg.ResetCooldown(),
		StopTimeout:   cfg.EmergencyStopTimeout(),
		Closers:       []io.Closer{st.Laser},
		Exit:          exit,
		Logger:        logger,
	})
	st.Orchestrator = orch
	return st, nil
}

// Close releases every session and the history store.
func (s *Station) Close() error {
	if s == nil {
		return nil
	}
	_ = s.Banks.Close()
	if s.recorder != nil {
		s.recorder.wait()
	}
	if s.Laser != nil {
		_ = s.Laser.Close()
	}
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

type deviceSpec struct {
	name       string
	identifier string
	baud       int
}

// openBanks opens the two switch matrices and instruments. An empty
// instrument2 identifier makes bank 2 share the bank 1 instrument.
func openBanks(ctx context.Context, cfg *config.Config, resolver daemon.Resolver, open portOpener, logger *slog.Logger) (device.Banks, []daemon.Session, []string) {
	hw := cfg.Hardware
	var (
		sessions []daemon.Session
		warnings []string
	)

	connect := func(spec deviceSpec) (*serialport.Port, error) {
		if strings.TrimSpace(spec.identifier) == "" {
			return nil, fmt.Errorf("%s: no identifier configured", spec.name)
		}
		path, err := resolver.Resolve(ctx, spec.identifier)
		if err != nil {
			return nil, err
		}
		port, err := open(path, spec.baud)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, daemon.Session{Name: spec.name, Identifier: spec.identifier, Port: port})
		logger.Info("device session opened",
			logging.String(logging.FieldEventType, "device_opened"),
			logging.String("device", spec.name),
			logging.String("path", path),
		)
		return port, nil
	}
	degraded := func(spec deviceSpec, err error) *device.Disconnected {
		logging.WarnWithContext(logger, "device session unavailable", "device_connect_failed",
			logging.String("device", spec.name),
			logging.String("identifier", spec.identifier),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the USB cable and the hardware identifiers in the config"),
			logging.String(logging.FieldImpact, "cavities on this bank fail until the device is reconnected"),
		)
		warnings = append(warnings, fmt.Sprintf("%s: %v", spec.name, err))
		return device.NewDisconnected(spec.name, err)
	}

	switchFor := func(spec deviceSpec) device.SwitchMatrix {
		port, err := connect(spec)
		if err != nil {
			return degraded(spec, err)
		}
		return scpi.NewSwitch(spec.name, port)
	}
	instrumentFor := func(spec deviceSpec) device.TestInstrument {
		port, err := connect(spec)
		if err != nil {
			return degraded(spec, err)
		}
		return scpi.NewInstrument(spec.name, port)
	}

	banks := device.Banks{
		One: device.Bank{ID: channelmap.Bank1},
		Two: device.Bank{ID: channelmap.Bank2},
	}
	banks.One.Switch = switchFor(deviceSpec{"switch1", hw.Switch1, hw.SwitchBaud})
	banks.Two.Switch = switchFor(deviceSpec{"switch2", hw.Switch2, hw.SwitchBaud})
	banks.One.Instrument = instrumentFor(deviceSpec{"instrument1", hw.Instrument1, hw.InstrumentBaud})
	if strings.TrimSpace(hw.Instrument2) == "" {
		banks.Two.Instrument = banks.One.Instrument
	} else {
		banks.Two.Instrument = instrumentFor(deviceSpec{"instrument2", hw.Instrument2, hw.InstrumentBaud})
	}
	return banks, sessions, warnings
}
