package report

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// CycleStats summarizes per-cavity test durations in seconds.
type CycleStats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	P95    float64 `json:"p95" yaml:"p95"`
}

// Summarize computes cycle statistics. An empty sample yields a zero value.
func Summarize(durations []float64) (CycleStats, error) {
	if len(durations) == 0 {
		return CycleStats{}, nil
	}
	data := stats.Float64Data(durations)
	out := CycleStats{Count: len(durations)}

	var err error
	if out.Mean, err = stats.Mean(data); err != nil {
		return CycleStats{}, fmt.Errorf("mean: %w", err)
	}
	if out.Median, err = stats.Median(data); err != nil {
		return CycleStats{}, fmt.Errorf("median: %w", err)
	}
	if out.StdDev, err = stats.StandardDeviation(data); err != nil {
		return CycleStats{}, fmt.Errorf("standard deviation: %w", err)
	}
	if out.Min, err = stats.Min(data); err != nil {
		return CycleStats{}, fmt.Errorf("min: %w", err)
	}
	if out.Max, err = stats.Max(data); err != nil {
		return CycleStats{}, fmt.Errorf("max: %w", err)
	}
	if out.P95, err = stats.Percentile(data, 95); err != nil {
		return CycleStats{}, fmt.Errorf("p95: %w", err)
	}
	return out, nil
}

// StatsTable renders s as a two-column table.
func StatsTable(s CycleStats) string {
	rows := [][]string{
		{"Cavities", fmt.Sprintf("%d", s.Count)},
		{"Mean", seconds(s.Mean)},
		{"Median", seconds(s.Median)},
		{"Std dev", seconds(s.StdDev)},
		{"Min", seconds(s.Min)},
		{"Max", seconds(s.Max)},
		{"P95", seconds(s.P95)},
	}
	return RenderTable([]Column{Text("Cycle time"), Number("Value")}, rows)
}

func seconds(v float64) string {
	return fmt.Sprintf("%.2fs", v)
}
