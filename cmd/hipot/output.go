package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML encodes v as YAML to the command's stdout.
func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "format", "o", formatTable, "Output format: table, json, or yaml")
}

// writeFormatted emits v as JSON or YAML, or calls table for the default
// human-readable rendering.
func writeFormatted(cmd *cobra.Command, format string, v any, table func() error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", formatTable:
		return table()
	case formatJSON:
		return writeJSON(cmd, v)
	case formatYAML:
		return writeYAML(cmd, v)
	default:
		return fmt.Errorf("unsupported format %q (want table, json, or yaml)", format)
	}
}
