// Package device defines the hardware contracts the sequencer drives: a
// switch matrix that routes instrument leads to cavity channels and a
// high-voltage test instrument that runs continuity and withstand programs.
//
// A Bank pairs one switch matrix with one instrument; the station has two.
// Every operation takes a context and returns an error; failures are tagged
// with station.ErrDevice so callers can classify them without knowing which
// adapter produced them. Adapters live in subpackages: scpi speaks the
// line protocol over a serialport transport, sim provides in-memory devices
// for dry runs and tests.
package device
