// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI and the operator console.
//
// It owns socket lifecycle management and the request/response DTOs for the
// three operator commands (Start, Reset, EmergencyStop) plus status and report
// reads. EmergencyStop is acknowledged before the daemon begins shutting down
// so the caller sees the reply before the process exits.
package ipc
