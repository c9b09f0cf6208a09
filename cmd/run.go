package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"go.uber.org/zap"
)

// errIncomplete signals that a run ended without the oracle finishing it.
var errIncomplete = errors.New("objective not completed")

// newRunCmd creates the `run` command.
func newRunCmd(d *deps) *cobra.Command {
	var transcript string

	runCmd := &cobra.Command{
		Use:   "run [objective]",
		Short: "Pursue one objective on the desktop",
		Long: `Runs the plan-act-observe loop for a single objective. When no objective is
given on the command line it is read from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			objective := strings.TrimSpace(strings.Join(args, " "))
			if objective == "" {
				objective, err = promptObjective(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}
			return runObjective(ctx, observability.GetLogger(), cfg, d, objective, transcript, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringVarP(&transcript, "transcript", "t", "", "write the run transcript as YAML to this file")
	return runCmd
}

// promptObjective asks for the objective on w and reads one line from r.
func promptObjective(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "What is your objective? ")
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read objective: %w", err)
		}
		return "", fmt.Errorf("no objective given")
	}
	objective := strings.TrimSpace(scanner.Text())
	if objective == "" {
		return "", fmt.Errorf("no objective given")
	}
	return objective, nil
}

// runObjective contains the core, testable logic of the run command.
func runObjective(ctx context.Context, logger *zap.Logger, cfg *config.Config, d *deps, objective, transcript string, w io.Writer) error {
	s, err := openAgent(ctx, d, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	out, runErr := s.loop.Run(ctx, objective)
	if out == nil {
		return runErr
	}
	printOutcome(w, out)

	if transcript != "" {
		if err := writeTranscript(transcript, out); err != nil {
			return err
		}
		logger.Info("Transcript written.", zap.String("path", transcript))
	}

	if runErr != nil {
		return runErr
	}
	if out.Status != agent.StatusCompleted {
		return fmt.Errorf("%w: %s", errIncomplete, out.Summary)
	}
	return nil
}
