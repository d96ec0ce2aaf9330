// Package channelmap translates cavity numbers into switch-matrix channel
// assignments.
//
// The station wires five cavities to each of two banks. Within a bank the
// cavity at local position i uses channel 2i-1 for the high-voltage
// withstand lead and 2i for the return lead, so channels 1-10 belong to the
// cavities. The continuity lead is a single shared channel above that range
// on every bank.
package channelmap

import (
	"fmt"

	"hipot/internal/station"
)

const (
	// CavityCount is the number of fixture positions on the station.
	CavityCount = 10
	// CavitiesPerBank is the number of cavities wired to one switch matrix.
	CavitiesPerBank = 5
	// ContinuityChannel is the switch channel shared by every continuity test.
	// It must stay outside 1..2*CavitiesPerBank.
	ContinuityChannel = 11
)

// Bank identifies one switch matrix and test instrument pair.
type Bank int

const (
	Bank1 Bank = 1
	Bank2 Bank = 2
)

// Banks lists every bank in disable order.
var Banks = []Bank{Bank1, Bank2}

func (b Bank) String() string {
	return fmt.Sprintf("bank%d", int(b))
}

// Assignment is the channel layout for one cavity.
type Assignment struct {
	Cavity            int
	Bank              Bank
	WithstandChannel  int
	ReturnChannel     int
	ContinuityChannel int
}

// Map returns the channel assignment for cavity. Cavities outside 1..10
// fail with station.ErrInvalidCavity.
func Map(cavity int) (Assignment, error) {
	if cavity < 1 || cavity > CavityCount {
		return Assignment{}, fmt.Errorf("%w: %d (want 1-%d)", station.ErrInvalidCavity, cavity, CavityCount)
	}
	bank := Bank1
	local := cavity
	if cavity > CavitiesPerBank {
		bank = Bank2
		local = cavity - CavitiesPerBank
	}
	return Assignment{
		Cavity:            cavity,
		Bank:              bank,
		WithstandChannel:  2*local - 1,
		ReturnChannel:     2 * local,
		ContinuityChannel: ContinuityChannel,
	}, nil
}

// Valid reports whether cavity is a station position.
func Valid(cavity int) bool {
	return cavity >= 1 && cavity <= CavityCount
}
