package device

import (
	"context"

	"hipot/internal/station"
)

// Disconnected stands in for a device whose session could not be opened.
// Every call fails with station.ErrDevice wrapping the original cause.
type Disconnected struct {
	Name  string
	Cause error
}

// NewDisconnected records why name is unavailable.
func NewDisconnected(name string, cause error) *Disconnected {
	return &Disconnected{Name: name, Cause: cause}
}

func (d *Disconnected) fail(op string) error {
	return station.Wrap(station.ErrDevice, d.Name, op, "device not connected", d.Cause)
}

func (d *Disconnected) ConfigureContinuityChannels(context.Context, []int) error {
	return d.fail("configure continuity channels")
}

func (d *Disconnected) ConfigureReturnChannels(context.Context, []int) error {
	return d.fail("configure return channels")
}

func (d *Disconnected) ConfigureWithstandChannels(context.Context, []int) error {
	return d.fail("configure withstand channels")
}

func (d *Disconnected) DisableAllChannels(context.Context) error {
	return d.fail("disable all channels")
}

func (d *Disconnected) CreateOrReplaceProgram(context.Context, string) error {
	return d.fail("create program")
}

func (d *Disconnected) SetParameters(context.Context, TestParameters) error {
	return d.fail("set parameters")
}

func (d *Disconnected) Execute(context.Context) error { return d.fail("execute") }

func (d *Disconnected) Abort(context.Context) error { return d.fail("abort") }

func (d *Disconnected) ReadRawStatus(context.Context) (string, error) {
	return "", d.fail("read status")
}

func (d *Disconnected) PollOperationComplete(context.Context) (bool, error) {
	return false, d.fail("poll operation complete")
}
