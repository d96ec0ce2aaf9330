package outcome

import "time"

// Report summarizes one finished batch.
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Fault      bool      `json:"fault" yaml:"fault"`
	// Stopped is set when the batch was interrupted by an emergency stop.
	Stopped  bool     `json:"stopped,omitempty" yaml:"stopped,omitempty"`
	Cavities []Cavity `json:"cavities" yaml:"cavities"`
}

// Failures lists the cavities whose test outcome is Fail, in ascending order.
func (r Report) Failures(test Test) []int {
	var out []int
	for _, c := range r.Cavities {
		var o Outcome
		switch test {
		case Continuity:
			o = c.Continuity
		case Hypot:
			o = c.Hypot
		}
		if o == Fail {
			out = append(out, c.Number)
		}
	}
	return out
}

// HasFault reports whether any cavity failed either test.
func (r Report) HasFault() bool {
	for _, c := range r.Cavities {
		if c.Failed() {
			return true
		}
	}
	return false
}

// Counts tallies cavities by overall result.
func (r Report) Counts() (passed, failed, disabled int) {
	for _, c := range r.Cavities {
		switch {
		case c.Failed():
			failed++
		case c.Passed():
			passed++
		case c.Continuity == Disabled:
			disabled++
		}
	}
	return passed, failed, disabled
}

// Duration is the wall time of the batch.
func (r Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
