package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"hipot/internal/outcome"
)

const (
	runsSheet     = "Runs"
	cavitiesSheet = "Cavities"
)

// WriteXLSX exports reports to a workbook with a run summary sheet and a
// per-cavity sheet.
func WriteXLSX(path string, reports []outcome.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(cavitiesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	runRows := [][]any{{"Run", "Started", "Finished", "Status", "Passed", "Failed", "Disabled", "Duration (s)"}}
	cavityRows := [][]any{{"Run", "Cavity", "Continuity", "Hypot", "Laser", "Continuity record", "Hypot record", "Duration (s)", "Errors"}}
	for _, r := range reports {
		passed, failed, disabled := r.Counts()
		status := "pass"
		switch {
		case r.Stopped:
			status = "stopped"
		case r.Fault:
			status = "fault"
		}
		runRows = append(runRows, []any{
			r.RunID, r.StartedAt.Local(), r.FinishedAt.Local(), status,
			passed, failed, disabled, r.Duration().Seconds(),
		})
		for _, c := range r.Cavities {
			errs := ""
			if len(c.Errors) > 0 {
				errs = fmt.Sprint(c.Errors)
			}
			cavityRows = append(cavityRows, []any{
				r.RunID, c.Number, string(c.Continuity), string(c.Hypot), string(c.Laser),
				c.ContinuityRecord, c.HypotRecord, c.Duration().Seconds(), errs,
			})
		}
	}

	if err := writeRows(f, runsSheet, runRows); err != nil {
		return err
	}
	if err := writeRows(f, cavitiesSheet, cavityRows); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
