package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"go.uber.org/zap"
)

// newHistoryCmd creates the `history` command and its `show` subcommand.
func newHistoryCmd(d *deps) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the run store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return listHistory(ctx, observability.GetLogger(), cfg, d, limit, cmd.OutOrStdout())
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")

	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the full history of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			return showRun(ctx, observability.GetLogger(), cfg, d, id, cmd.OutOrStdout())
		},
	}
	historyCmd.AddCommand(showCmd)
	return historyCmd
}

func listHistory(ctx context.Context, logger *zap.Logger, cfg *config.Config, d *deps, limit int, w io.Writer) error {
	st, cleanup, err := d.stores.Create(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		status := string(r.Status)
		if status == "" {
			status = "running"
		}
		fmt.Fprintf(w, "%s  %s  %-9s  %3d  %s\n", r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), status, r.Steps, r.Objective)
	}
	return nil
}

func showRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, d *deps, id uuid.UUID, w io.Writer) error {
	st, cleanup, err := d.stores.Create(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	out, err := st.LoadRun(ctx, id)
	if err != nil {
		return err
	}
	printHistory(w, out)
	return nil
}
