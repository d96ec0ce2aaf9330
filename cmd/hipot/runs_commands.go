package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hipot/internal/config"
	"hipot/internal/history"
	"hipot/internal/outcome"
	"hipot/internal/report"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the batch history",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsExportCommand(ctx))
	runsCmd.AddCommand(newRunsStatsCommand(ctx))
	runsCmd.AddCommand(newRunsPruneCommand(ctx))
	return runsCmd
}

// withHistory opens the history database read-only so the CLI never
// contends with the daemon's writer. ErrNoHistory is returned unwrapped when
// no batch has been recorded yet.
func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.OpenReadOnly(cfg)
	if errors.Is(err, history.ErrNoHistory) {
		return err
	}
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func withWritableHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []history.RunSummary
			err := withHistory(ctx, func(store *history.Store) error {
				var err error
				runs, err = store.ListRuns(cmd.Context(), limit)
				return err
			})
			if err != nil && !errors.Is(err, history.ErrNoHistory) {
				return err
			}
			if runs == nil {
				runs = []history.RunSummary{}
			}
			return writeFormatted(cmd, format, runs, func() error {
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, runsTable(runs))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	addFormatFlag(cmd, &format)
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one batch report by id or unique prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run outcome.Report
			err := withHistory(ctx, func(store *history.Store) error {
				var err error
				run, err = store.Run(cmd.Context(), strings.TrimSpace(args[0]))
				return err
			})
			if err != nil {
				return runLookupError(args[0], err)
			}
			return writeFormatted(cmd, format, run, func() error {
				fmt.Fprint(cmd.OutOrStdout(), report.Render(run))
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newRunsExportCommand(ctx *commandContext) *cobra.Command {
	var target string
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export batch history to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			target = strings.TrimSpace(target)
			if target == "" {
				return errors.New("--xlsx is required")
			}
			path, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve export path: %w", err)
			}
			err = withHistory(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				reports := make([]outcome.Report, 0, len(runs))
				for _, summary := range runs {
					run, err := store.Run(cmd.Context(), summary.ID)
					if err != nil {
						return fmt.Errorf("load run %s: %w", summary.ID, err)
					}
					reports = append(reports, run)
				}
				if err := report.WriteXLSX(path, reports); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs to %s\n", len(reports), path)
				return nil
			})
			if errors.Is(err, history.ErrNoHistory) {
				return errors.New("nothing to export; no runs recorded yet")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&target, "xlsx", "", "Destination workbook path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of runs (0 for all)")
	return cmd
}

func newRunsStatsCommand(ctx *commandContext) *cobra.Command {
	var since time.Duration
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize per-cavity cycle times",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff time.Time
			if since > 0 {
				cutoff = time.Now().Add(-since)
			}
			var durations []float64
			err := withHistory(ctx, func(store *history.Store) error {
				var err error
				durations, err = store.CycleDurations(cmd.Context(), cutoff)
				return err
			})
			if err != nil && !errors.Is(err, history.ErrNoHistory) {
				return err
			}
			stats, err := report.Summarize(durations)
			if err != nil {
				return err
			}
			return writeFormatted(cmd, format, stats, func() error {
				out := cmd.OutOrStdout()
				if stats.Count == 0 {
					fmt.Fprintln(out, "No tested cavities in range")
					return nil
				}
				fmt.Fprintln(out, report.StatsTable(stats))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "Only include runs started within this window (e.g. 168h)")
	addFormatFlag(cmd, &format)
	return cmd
}

func newRunsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withWritableHistory(ctx, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (e.g. 720h)")
	return cmd
}

func runLookupError(id string, err error) error {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, history.ErrNoHistory):
		return fmt.Errorf("run %q not found", id)
	case errors.Is(err, history.ErrAmbiguous):
		return fmt.Errorf("run prefix %q matches more than one run", id)
	default:
		return err
	}
}

func runsTable(runs []history.RunSummary) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := "PASS"
		switch {
		case r.Stopped:
			result = "STOPPED"
		case r.Fault:
			result = "FAULT"
		}
		duration := "-"
		if r.Duration > 0 {
			duration = r.Duration.Round(100 * time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			result,
			strconv.Itoa(r.Passed),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Disabled),
			duration,
		})
	}
	return report.RenderTable(
		[]report.Column{
			report.Text("Run"), report.Text("Started"), report.Text("Result"),
			report.Number("Passed"), report.Number("Failed"), report.Number("Disabled"), report.Number("Duration"),
		},
		rows,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
