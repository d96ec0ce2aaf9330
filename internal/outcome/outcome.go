// Package outcome holds the per-cavity result vocabulary shared by the
// sequencer, the batch orchestrator, history storage, and reports.
package outcome

import "time"

// Outcome is the result of one test on one cavity.
type Outcome string

const (
	Unset    Outcome = "unset"
	Pass     Outcome = "pass"
	Fail     Outcome = "fail"
	Skipped  Outcome = "skipped"
	Disabled Outcome = "disabled"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case Unset, Pass, Fail, Skipped, Disabled:
		return true
	}
	return false
}

// Test names a test kind.
type Test string

const (
	Continuity Test = "continuity"
	Hypot      Test = "hypot"
)

// Laser is the result of the marking stage. It never affects the fault flag.
type Laser string

const (
	LaserNone    Laser = "none"
	LaserMarked  Laser = "marked"
	LaserSkipped Laser = "skipped"
)

// Cavity collects everything recorded for one cavity during a batch.
type Cavity struct {
	Number           int       `json:"number" yaml:"number"`
	Continuity       Outcome   `json:"continuity" yaml:"continuity"`
	Hypot            Outcome   `json:"hypot" yaml:"hypot"`
	Laser            Laser     `json:"laser" yaml:"laser"`
	LaserReason      string    `json:"laser_reason,omitempty" yaml:"laser_reason,omitempty"`
	ContinuityRecord string    `json:"continuity_record,omitempty" yaml:"continuity_record,omitempty"`
	HypotRecord      string    `json:"hypot_record,omitempty" yaml:"hypot_record,omitempty"`
	Errors           []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt        time.Time `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	FinishedAt       time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// NewCavity returns a cavity record with both outcomes Unset.
func NewCavity(number int) Cavity {
	return Cavity{Number: number, Continuity: Unset, Hypot: Unset, Laser: LaserNone}
}

// Failed reports whether either test failed.
func (c Cavity) Failed() bool {
	return c.Continuity == Fail || c.Hypot == Fail
}

// Passed reports whether both tests passed.
func (c Cavity) Passed() bool {
	return c.Continuity == Pass && c.Hypot == Pass
}

// Duration is the wall time spent sequencing the cavity.
func (c Cavity) Duration() time.Duration {
	if c.StartedAt.IsZero() || c.FinishedAt.Before(c.StartedAt) {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
