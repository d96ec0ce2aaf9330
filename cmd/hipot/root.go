package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "hipot",
		Short:         "Cavity hypot and continuity test station",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&ctx.socketFlag, "socket", "", "Path to the hipot daemon socket")
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(newStationCommands(ctx)...)
	root.AddCommand(
		newDaemonRunCommand(ctx),
		newConsoleCommand(ctx),
		newLogsCommand(ctx),
		newRunsCommand(ctx),
		newCavityCommand(ctx),
		newPortsCommand(),
		newNotifyCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
