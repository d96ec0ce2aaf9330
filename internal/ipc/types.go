package ipc

import (
	"hipot/internal/batch"
	"hipot/internal/outcome"
)

// StartRequest launches a batch.
type StartRequest struct{}

// StartResponse indicates whether the batch was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// ResetRequest clears the batch state.
type ResetRequest struct {
	// CloseReport dismisses the displayed report along with the outcomes.
	CloseReport bool `json:"close_report"`
}

// ResetResponse indicates reset result.
type ResetResponse struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// EmergencyStopRequest aborts everything and terminates the daemon.
type EmergencyStopRequest struct{}

// EmergencyStopResponse acknowledges the stop request.
type EmergencyStopResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and batch status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	LockPath    string         `json:"lock_path"`
	HistoryPath string         `json:"history_path"`
	ConfigPath  string         `json:"config_path"`
	Hotplug     bool           `json:"hotplug"`
	Batch       batch.Snapshot `json:"batch"`
}

// ReportRequest fetches the most recent batch report.
type ReportRequest struct{}

// ReportResponse carries the most recent batch report when one exists.
type ReportResponse struct {
	Available bool           `json:"available"`
	Report    outcome.Report `json:"report"`
}
