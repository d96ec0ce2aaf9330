package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"hipot/internal/outcome"
)

var titleCaser = cases.Title(language.English)

// Label renders an outcome value for display: "start_locked" becomes "Start Locked".
func Label(value string) string {
	if value == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

// CavityTable renders one row per cavity.
func CavityTable(cavities []outcome.Cavity) string {
	columns := []Column{Number("Cavity"), Text("Continuity"), Text("Hypot"), Text("Laser"), Number("Duration"), Text("Notes")}
	rows := make([][]string, 0, len(cavities))
	for _, c := range cavities {
		notes := c.LaserReason
		if len(c.Errors) > 0 {
			notes = c.Errors[0]
			if extra := len(c.Errors) - 1; extra > 0 {
				notes += fmt.Sprintf(" (+%d more)", extra)
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Number),
			Label(string(c.Continuity)),
			Label(string(c.Hypot)),
			Label(string(c.Laser)),
			formatDuration(c.Duration()),
			notes,
		})
	}
	return RenderTable(columns, rows)
}

// FaultSummary lists the failing cavities per test kind. It returns an empty
// string for a report without faults.
func FaultSummary(r outcome.Report) string {
	continuity := r.Failures(outcome.Continuity)
	hypot := r.Failures(outcome.Hypot)
	if len(continuity) == 0 && len(hypot) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("FAULT\n")
	if len(continuity) > 0 {
		fmt.Fprintf(&b, "Continuity failed: cavity %s\n", joinInts(continuity))
	}
	if len(hypot) > 0 {
		fmt.Fprintf(&b, "Hypot failed: cavity %s\n", joinInts(hypot))
	}
	return b.String()
}

// Render produces the full operator report for a batch.
func Render(r outcome.Report) string {
	var b strings.Builder
	status := "PASS"
	switch {
	case r.Stopped:
		status = "STOPPED"
	case r.Fault:
		status = "FAULT"
	}
	passed, failed, disabled := r.Counts()
	fmt.Fprintf(&b, "Run %s  %s\n", r.RunID, status)
	if !r.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started %s  Duration %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), formatDuration(r.Duration()))
	}
	fmt.Fprintf(&b, "Passed %d  Failed %d  Disabled %d\n", passed, failed, disabled)
	if summary := FaultSummary(r); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
	}
	b.WriteString("\n")
	b.WriteString(CavityTable(r.Cavities))
	b.WriteString("\n")
	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}
