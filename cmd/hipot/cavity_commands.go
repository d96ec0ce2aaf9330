package main

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hipot/internal/channelmap"
	"hipot/internal/config"
	"hipot/internal/report"
)

var errBadPassword = errors.New("admin password rejected")

func newCavityCommand(ctx *commandContext) *cobra.Command {
	cavityCmd := &cobra.Command{
		Use:   "cavity",
		Short: "View and edit per-cavity run and laser settings",
	}
	cavityCmd.AddCommand(newCavityListCommand(ctx))
	cavityCmd.AddCommand(newCavitySetCommand(ctx))
	cavityCmd.AddCommand(newCavityToggleAllCommand(ctx))
	return cavityCmd
}

func newCavityListCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cavity settings and channel assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings := cfg.Cavities()
			return writeFormatted(cmd, format, settings, func() error {
				fmt.Fprintln(cmd.OutOrStdout(), cavitySettingsTable(settings))
				return nil
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newCavitySetCommand(ctx *commandContext) *cobra.Command {
	var run, laser bool
	var password string
	cmd := &cobra.Command{
		Use:   "set <cavity>",
		Short: "Enable or disable one cavity's test run or laser mark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil || !channelmap.Valid(n) {
				return fmt.Errorf("invalid cavity %q (want 1-%d)", args[0], channelmap.CavityCount)
			}
			if !cmd.Flags().Changed("run") && !cmd.Flags().Changed("laser") {
				return errors.New("nothing to change; pass --run and/or --laser")
			}
			return editSettings(cmd, ctx, password, func(cfg *config.Config) error {
				current := cfg.Cavity(n)
				if cmd.Flags().Changed("run") {
					current.RunEnabled = run
				}
				if cmd.Flags().Changed("laser") {
					current.LaserEnabled = laser
				}
				return cfg.SetCavity(n, current.RunEnabled, current.LaserEnabled)
			})
		},
	}
	cmd.Flags().BoolVar(&run, "run", true, "Run the tests on this cavity")
	cmd.Flags().BoolVar(&laser, "laser", true, "Laser mark this cavity when it passes")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted when omitted)")
	return cmd
}

func newCavityToggleAllCommand(ctx *commandContext) *cobra.Command {
	var run, laser bool
	var password string
	cmd := &cobra.Command{
		Use:   "toggle-all",
		Short: "Invert the run or laser flag of every cavity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !run && !laser {
				return errors.New("choose --run, --laser, or both")
			}
			return editSettings(cmd, ctx, password, func(cfg *config.Config) error {
				for _, s := range cfg.Cavities() {
					if run {
						s.RunEnabled = !s.RunEnabled
					}
					if laser {
						s.LaserEnabled = !s.LaserEnabled
					}
					if err := cfg.SetCavity(s.Number, s.RunEnabled, s.LaserEnabled); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "Toggle the run flags")
	cmd.Flags().BoolVar(&laser, "laser", false, "Toggle the laser flags")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted when omitted)")
	return cmd
}

// editSettings checks the admin password, applies edit, and saves the
// configuration. A running daemon picks the change up through its watcher.
func editSettings(cmd *cobra.Command, ctx *commandContext, password string, edit func(*config.Config) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if password == "" {
		password, err = promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Admin.Password)) != 1 {
		return errBadPassword
	}
	if err := edit(cfg); err != nil {
		return err
	}
	if err := config.Save(ctx.configPath, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved cavity settings to %s\n", ctx.configPath)
	fmt.Fprintln(out, cavitySettingsTable(cfg.Cavities()))
	return nil
}

func promptPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Admin password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errBadPassword
	}
	return line, nil
}

func cavitySettingsTable(settings []config.CavitySettings) string {
	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		bank := "-"
		if a, err := channelmap.Map(s.Number); err == nil {
			bank = strconv.Itoa(int(a.Bank))
		}
		laser := yesNo(s.LaserEnabled)
		if !s.RunEnabled {
			laser += " (idle)"
		}
		rows = append(rows, []string{strconv.Itoa(s.Number), bank, yesNo(s.RunEnabled), laser})
	}
	return report.RenderTable(
		[]report.Column{report.Number("Cavity"), report.Number("Bank"), report.Text("Run"), report.Text("Laser")},
		rows,
	)
}
