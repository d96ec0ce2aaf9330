// Package station defines the shared error markers and context helpers used
// by every component that touches the test station hardware.
//
// Key responsibilities:
//   - Sentinel markers plus the Wrap helper so failures from device drivers,
//     the laser link, and configuration loading can be classified with
//     errors.Is regardless of how deeply they were wrapped.
//   - Context helpers that stamp run identifiers, cavity numbers, and stage
//     names for structured logging.
//
// Use these helpers when adding new device or sequencing code so operational
// behaviour (error classification, observability) stays uniform.
package station
