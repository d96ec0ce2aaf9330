package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hipot/internal/discovery"
	"hipot/internal/report"
)

func newPortsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:         "ports",
		Short:       "List serial adapters usable as hardware identifiers",
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := discovery.NewResolver().Ports(cmd.Context())
			if err != nil {
				return err
			}
			return writeFormatted(cmd, format, ports, func() error {
				out := cmd.OutOrStdout()
				if len(ports) == 0 {
					fmt.Fprintln(out, "No USB serial adapters found")
					return nil
				}
				rows := make([][]string, 0, len(ports))
				for _, p := range ports {
					rows = append(rows, []string{p.Path, dash(p.Serial), dash(p.Link)})
				}
				fmt.Fprintln(out, report.RenderTable([]report.Column{report.Text("Device"), report.Text("Serial"), report.Text("Link")}, rows))
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
