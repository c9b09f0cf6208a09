package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

// newWindowsCmd creates the `windows` command.
func newWindowsCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List the titles of all visible top-level windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			s, err := openDesktop(ctx, d, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			locator := desktop.NewLocator(s.platform.Desktop, cfg.Desktop().PollInterval, logger)
			titles, err := locator.Titles(ctx)
			if err != nil {
				return err
			}
			if len(titles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No open windows found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(titles, "\n"))
			return nil
		},
	}
}

// newInspectCmd creates the `inspect` command.
func newInspectCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect WINDOW",
		Short: "Print the redacted element listing of a window",
		Long: `Locates the first window whose title contains WINDOW (case-insensitive) and
prints its elements exactly as the oracle would see them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			s, err := openDesktop(ctx, d, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			dcfg := cfg.Desktop()
			locator := desktop.NewLocator(s.platform.Desktop, dcfg.PollInterval, logger)
			w, err := locator.Locate(ctx, args[0], dcfg.LocateTimeout)
			if err != nil {
				return err
			}
			inspector := desktop.NewInspector(desktop.NewPolicyFromConfig(cfg.Redaction()), dcfg.SettleDelay, logger)
			descriptors, err := inspector.Inspect(ctx, w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), desktop.FormatDescriptors(descriptors))
			return nil
		},
	}
}
