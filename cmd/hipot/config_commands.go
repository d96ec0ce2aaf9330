package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"hipot/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the station configuration",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var target string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configTarget(target)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(path)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", path)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check %s: %w", path, statErr)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", path)
			fmt.Fprintln(out, "Next: set the [hardware] identifiers (`hipot ports` lists candidates) and change the admin password.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "path", "p", "", "Where to write the file (default: the standard config location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func configTarget(flag string) (string, error) {
	if flag = strings.TrimSpace(flag); flag == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(flag)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", flag, err)
	}
	return path, nil
}

// newConfigValidateCommand loads the file itself so a broken config is
// reported instead of aborting in the root pre-run.
func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report problems",
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(ctx.configFlag))
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Config path: %s\n", resolved)
			} else {
				fmt.Fprintf(out, "Config path: %s (missing; using defaults)\n", resolved)
			}
			for _, warning := range cfg.Warnings {
				fmt.Fprintf(out, "Warning: %v\n", warning)
			}
			if n := len(cfg.Warnings); n > 0 {
				fmt.Fprintf(out, "Configuration valid with %d warnings; the listed values fall back to defaults\n", n)
				return nil
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
