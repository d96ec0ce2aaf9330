package main

import (
	"github.com/spf13/cobra"

	"hipot/internal/console"
	"hipot/internal/ipc"
)

func newConsoleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return console.Run(client)
			})
		},
	}
}
