// Package scpi drives the switch matrix and test instrument over a
// line-oriented command transport.
package scpi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hipot/internal/device"
	"hipot/internal/station"
)

// Transport exchanges newline terminated lines with one device.
type Transport interface {
	Write(ctx context.Context, line string) error
	Query(ctx context.Context, line string) (string, error)
	Close() error
}

const (
	cmdRouteContinuity = "ROUT:CONT (@%s)"
	cmdRouteReturn     = "ROUT:RET (@%s)"
	cmdRouteWithstand  = "ROUT:HV (@%s)"
	cmdRouteOpenAll    = "ROUT:OPEN:ALL"

	cmdFileCatalog = "FILE:CAT?"
	cmdFileDelete  = "FILE:DEL %d"
	cmdFileNew     = "FILE:NEW %d,%s"
	cmdFileSave    = "FILE:SAVE"
	cmdStepAddACW  = "STEP:ADD ACW,%s"
	cmdTest        = "TEST"
	cmdReset       = "RESET"
	cmdTestDisplay = "TD?"
	cmdOPC         = "*OPC?"
)

// Switch is a SwitchMatrix backed by a Transport.
type Switch struct {
	name string
	t    Transport
}

// NewSwitch wraps t. name labels errors and logs.
func NewSwitch(name string, t Transport) *Switch {
	return &Switch{name: name, t: t}
}

func (s *Switch) write(ctx context.Context, op, line string) error {
	if err := s.t.Write(ctx, line); err != nil {
		return station.Wrap(station.ErrDevice, s.name, op, "", err)
	}
	return nil
}

func (s *Switch) ConfigureContinuityChannels(ctx context.Context, channels []int) error {
	return s.write(ctx, "configure continuity channels", fmt.Sprintf(cmdRouteContinuity, channelList(channels)))
}

func (s *Switch) ConfigureReturnChannels(ctx context.Context, channels []int) error {
	return s.write(ctx, "configure return channels", fmt.Sprintf(cmdRouteReturn, channelList(channels)))
}

func (s *Switch) ConfigureWithstandChannels(ctx context.Context, channels []int) error {
	return s.write(ctx, "configure withstand channels", fmt.Sprintf(cmdRouteWithstand, channelList(channels)))
}

func (s *Switch) DisableAllChannels(ctx context.Context) error {
	return s.write(ctx, "disable all channels", cmdRouteOpenAll)
}

// Close releases the transport.
func (s *Switch) Close() error { return s.t.Close() }

// Instrument is a TestInstrument backed by a Transport.
type Instrument struct {
	name string
	t    Transport
}

// NewInstrument wraps t. name labels errors and logs.
func NewInstrument(name string, t Transport) *Instrument {
	return &Instrument{name: name, t: t}
}

func (i *Instrument) write(ctx context.Context, op, line string) error {
	if err := i.t.Write(ctx, line); err != nil {
		return station.Wrap(station.ErrDevice, i.name, op, "", err)
	}
	return nil
}

func (i *Instrument) query(ctx context.Context, op, line string) (string, error) {
	resp, err := i.t.Query(ctx, line)
	if err != nil {
		return "", station.Wrap(station.ErrDevice, i.name, op, "", err)
	}
	return strings.TrimSpace(resp), nil
}

// CreateOrReplaceProgram deletes a stored program called name, if any, and
// creates an empty one in the same slot (or the next free slot).
func (i *Instrument) CreateOrReplaceProgram(ctx context.Context, name string) error {
	catalog, err := i.query(ctx, "list programs", cmdFileCatalog)
	if err != nil {
		return err
	}
	names := splitCatalog(catalog)
	slot := len(names) + 1
	for idx, existing := range names {
		if existing == name {
			slot = idx + 1
			if err := i.write(ctx, "delete program", fmt.Sprintf(cmdFileDelete, slot)); err != nil {
				return err
			}
			break
		}
	}
	return i.write(ctx, "create program", fmt.Sprintf(cmdFileNew, slot, name))
}

func (i *Instrument) SetParameters(ctx context.Context, params device.TestParameters) error {
	if err := i.write(ctx, "add step", fmt.Sprintf(cmdStepAddACW, formatParameters(params))); err != nil {
		return err
	}
	return i.write(ctx, "save program", cmdFileSave)
}

func (i *Instrument) Execute(ctx context.Context) error {
	return i.write(ctx, "execute", cmdTest)
}

func (i *Instrument) Abort(ctx context.Context) error {
	return i.write(ctx, "abort", cmdReset)
}

func (i *Instrument) ReadRawStatus(ctx context.Context) (string, error) {
	return i.query(ctx, "read status", cmdTestDisplay)
}

func (i *Instrument) PollOperationComplete(ctx context.Context) (bool, error) {
	resp, err := i.query(ctx, "poll operation complete", cmdOPC)
	if err != nil {
		return false, err
	}
	return strings.Contains(resp, "1"), nil
}

// Close releases the transport.
func (i *Instrument) Close() error { return i.t.Close() }

func channelList(channels []int) string {
	parts := make([]string, len(channels))
	for idx, ch := range channels {
		parts[idx] = strconv.Itoa(ch)
	}
	return strings.Join(parts, ",")
}

func splitCatalog(catalog string) []string {
	catalog = strings.TrimSpace(catalog)
	if catalog == "" {
		return nil
	}
	parts := strings.Split(catalog, ",")
	for idx := range parts {
		parts[idx] = strings.Trim(strings.TrimSpace(parts[idx]), `"`)
	}
	return parts
}

// formatParameters renders params in the instrument's ACW step order.
func formatParameters(p device.TestParameters) string {
	values := []string{
		num(p.Voltage),
		num(p.CurrentHighLimit),
		num(p.CurrentLowLimit),
		num(p.RampUpTime),
		num(p.DwellTime),
		num(p.RampDownTime),
		num(p.ArcSenseLevel),
		flag(p.ArcDetection),
		strconv.Itoa(p.Frequency),
		flag(p.ContinuityTest),
		num(p.ResistanceHighLimit),
		num(p.ResistanceLowLimit),
		num(p.ResistanceOffset),
	}
	return strings.Join(values, ",")
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
