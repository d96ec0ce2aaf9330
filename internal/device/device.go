package device

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hipot/internal/channelmap"
	"hipot/internal/station"
)

// TestParameters holds the thirteen values programmed into an ACW test step.
type TestParameters struct {
	Voltage             float64
	CurrentHighLimit    float64
	CurrentLowLimit     float64
	RampUpTime          float64
	DwellTime           float64
	RampDownTime        float64
	ArcSenseLevel       float64
	ArcDetection        bool
	Frequency           int
	ContinuityTest      bool
	ResistanceHighLimit float64
	ResistanceLowLimit  float64
	ResistanceOffset    float64
}

// SwitchMatrix routes instrument leads to cavity channels. Each Configure
// call replaces the enabled set for its role.
type SwitchMatrix interface {
	ConfigureContinuityChannels(ctx context.Context, channels []int) error
	ConfigureReturnChannels(ctx context.Context, channels []int) error
	ConfigureWithstandChannels(ctx context.Context, channels []int) error
	DisableAllChannels(ctx context.Context) error
}

// TestInstrument runs test programs and reports their status.
type TestInstrument interface {
	// CreateOrReplaceProgram leaves exactly one empty program called name,
	// deleting an existing one first.
	CreateOrReplaceProgram(ctx context.Context, name string) error
	SetParameters(ctx context.Context, params TestParameters) error
	Execute(ctx context.Context) error
	Abort(ctx context.Context) error
	// ReadRawStatus returns the instrument's comma separated display record.
	ReadRawStatus(ctx context.Context) (string, error)
	// PollOperationComplete reports the instrument's operation-complete flag.
	PollOperationComplete(ctx context.Context) (bool, error)
}

// Bank pairs the switch matrix and instrument serving five cavities.
type Bank struct {
	ID         channelmap.Bank
	Switch     SwitchMatrix
	Instrument TestInstrument
}

// Banks holds both station banks.
type Banks struct {
	One Bank
	Two Bank
}

// Get returns the bank with the given id.
func (b Banks) Get(id channelmap.Bank) (Bank, error) {
	switch id {
	case channelmap.Bank1:
		return b.One, nil
	case channelmap.Bank2:
		return b.Two, nil
	default:
		return Bank{}, fmt.Errorf("%w: unknown bank %d", station.ErrDevice, int(id))
	}
}

// List returns both banks in disable order.
func (b Banks) List() []Bank {
	return []Bank{b.One, b.Two}
}

// DisableAll attempts to open every channel on both banks. Every bank is
// tried even when an earlier one fails; the failures are joined.
func (b Banks) DisableAll(ctx context.Context) error {
	var errs []error
	for _, bank := range b.List() {
		if bank.Switch == nil {
			errs = append(errs, fmt.Errorf("%w: %s has no switch matrix", station.ErrDevice, bank.ID))
			continue
		}
		if err := bank.Switch.DisableAllChannels(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", bank.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every device that holds a session. A device shared by both
// banks is closed once.
func (b Banks) Close() error {
	seen := make(map[any]struct{})
	var errs []error
	for _, bank := range b.List() {
		for _, dev := range []any{bank.Switch, bank.Instrument} {
			closer, ok := dev.(io.Closer)
			if !ok {
				continue
			}
			if _, dup := seen[dev]; dup {
				continue
			}
			seen[dev] = struct{}{}
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
