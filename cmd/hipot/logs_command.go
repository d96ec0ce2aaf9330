package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"hipot/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var diagnostic bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.LogDir
			if diagnostic {
				dir = filepath.Join(dir, "debug")
			}
			out := cmd.OutOrStdout()
			return logs.Follow(cmd.Context(), filepath.Join(dir, "hipot.log"), logs.Options{
				Lines:  lines,
				Follow: follow,
			}, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines, across daemon restarts")
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Read the diagnostic DEBUG log instead")
	return cmd
}
