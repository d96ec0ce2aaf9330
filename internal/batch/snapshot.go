package batch

import (
	"slices"
	"time"

	"hipot/internal/config"
	"hipot/internal/outcome"
)

// Snapshot is a point-in-time copy of the batch state.
type Snapshot struct {
	RunID           string                  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Running         bool                    `json:"running" yaml:"running"`
	Stopping        bool                    `json:"stopping,omitempty" yaml:"stopping,omitempty"`
	Fault           bool                    `json:"fault" yaml:"fault"`
	StartLocked     bool                    `json:"start_locked" yaml:"start_locked"`
	ReportOpen      bool                    `json:"report_open" yaml:"report_open"`
	Progress        int                     `json:"progress" yaml:"progress"`
	CurrentCavity   int                     `json:"current_cavity,omitempty" yaml:"current_cavity,omitempty"`
	Stage           string                  `json:"stage,omitempty" yaml:"stage,omitempty"`
	CooldownUntil   time.Time               `json:"cooldown_until,omitzero" yaml:"cooldown_until,omitempty"`
	Cavities        []outcome.Cavity        `json:"cavities" yaml:"cavities"`
	Settings        []config.CavitySettings `json:"settings" yaml:"settings"`
	PendingSettings bool                    `json:"pending_settings,omitempty" yaml:"pending_settings,omitempty"`
	Warnings        []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	LastReport      *outcome.Report         `json:"last_report,omitempty" yaml:"last_report,omitempty"`
}

// Cavity returns the outcome row for cavity n.
func (s Snapshot) Cavity(n int) (outcome.Cavity, bool) {
	for _, c := range s.Cavities {
		if c.Number == n {
			return c, true
		}
	}
	return outcome.Cavity{}, false
}

func cloneCavities(in []outcome.Cavity) []outcome.Cavity {
	out := make([]outcome.Cavity, len(in))
	for idx, c := range in {
		c.Errors = slices.Clone(c.Errors)
		out[idx] = c
	}
	return out
}

func cloneReport(r *outcome.Report) *outcome.Report {
	if r == nil {
		return nil
	}
	copy := *r
	copy.Cavities = cloneCavities(r.Cavities)
	return &copy
}
