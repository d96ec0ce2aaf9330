// Package batch runs a full ten-cavity batch and owns the station's batch
// state: per-cavity outcomes, the fault flag, progress, and the published
// report.
//
// A batch runs on a single worker goroutine. Everything else (IPC handlers,
// the HTTP API, the console) reads copies of the state through Snapshot or
// Subscribe and may only call Start, Reset, and EmergencyStop. A batch that
// finishes with any failed test locks Start until Reset acknowledges the
// fault report.
package batch
