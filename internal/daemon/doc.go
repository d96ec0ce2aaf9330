// Package daemon coordinates the long-running hipot station process.
//
// It wires configuration, the batch orchestrator, the run history store, the
// serial hotplug monitor, and the read-only HTTP status API into a single
// lifecycle with flock-based locking to prevent multiple instances on the same
// fixture. Operator commands (Start, Reset, EmergencyStop) reach the daemon
// through the IPC socket; the HTTP API only exposes status, reports, and run
// history.
//
// Keep orchestration logic here: test sequencing lives in the sequencer and
// batch packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
