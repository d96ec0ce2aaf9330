// Package sequencer drives one cavity through continuity, hypot, and laser
// marking.
//
// Every energizing stage starts by opening all channels on both banks, then
// closes only the channels the cavity needs on its own bank and waits for the
// relays to settle. Hypot never runs unless continuity passed. Device failures
// are recorded as a failed outcome and logged; the sequencer only returns an
// error when its context is cancelled. Whatever happens, the cavity ends with
// every channel open.
package sequencer
