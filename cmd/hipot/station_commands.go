package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hipot/internal/ipc"
	"hipot/internal/report"
)

func newStationCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newResetCommand(ctx),
		newEmergencyStopCommand(ctx),
		newStatusCommand(ctx),
		newReportCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a test batch over the enabled cavities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if !resp.Started {
					return fmt.Errorf("start refused: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var closeReport bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear outcomes and the fault lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reset(closeReport)
				if err != nil {
					return err
				}
				if !resp.Reset {
					return fmt.Errorf("reset refused: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&closeReport, "close-report", false, "Dismiss the open fault report as well")
	return cmd
}

func newEmergencyStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "estop",
		Aliases: []string{"emergency-stop"},
		Short:   "Disable every output and terminate the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EmergencyStop()
				if err != nil {
					return err
				}
				if !resp.Accepted {
					return fmt.Errorf("emergency stop was not accepted")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Emergency stop accepted; outputs disabled and the daemon is exiting")
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and batch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				return writeFormatted(cmd, format, status, func() error {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					fmt.Fprintln(out, strings.Join(renderStatus(status, colorize), "\n"))
					if len(status.Batch.Cavities) > 0 {
						fmt.Fprintln(out)
						fmt.Fprintln(out, report.CavityTable(status.Batch.Cavities))
					}
					return nil
				})
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the most recent batch report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Report()
				if err != nil {
					return err
				}
				if !resp.Available {
					fmt.Fprintln(cmd.OutOrStdout(), "No batch has finished since the daemon started")
					return nil
				}
				return writeFormatted(cmd, format, resp.Report, func() error {
					fmt.Fprint(cmd.OutOrStdout(), report.Render(resp.Report))
					return nil
				})
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}
