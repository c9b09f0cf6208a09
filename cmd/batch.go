package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// batchFile is the YAML document the batch command reads.
type batchFile struct {
	Objectives []string `yaml:"objectives"`
}

// newBatchCmd creates the `batch` command.
func newBatchCmd(d *deps) *cobra.Command {
	var transcript string

	batchCmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Pursue every objective listed in a YAML file",
		Long: `Runs one loop per objective listed under 'objectives:' in FILE. Up to
--concurrency runs overlap; desktop actions are still performed one at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			objectives, err := loadObjectives(args[0])
			if err != nil {
				return err
			}
			return runBatch(ctx, observability.GetLogger(), cfg, d, objectives, transcript, cmd.OutOrStdout())
		},
	}

	batchCmd.Flags().Int("concurrency", 1, "number of objectives pursued at once")
	batchCmd.Flags().StringVarP(&transcript, "transcript", "t", "", "write all run transcripts as YAML to this file")
	return batchCmd
}

func loadObjectives(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read objectives: %w", err)
	}
	var f batchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse objectives file %s: %w", path, err)
	}
	if len(f.Objectives) == 0 {
		return nil, fmt.Errorf("objectives file %s lists no objectives", path)
	}
	return f.Objectives, nil
}

// runBatch contains the core, testable logic of the batch command.
func runBatch(ctx context.Context, logger *zap.Logger, cfg *config.Config, d *deps, objectives []string, transcript string, w io.Writer) error {
	s, err := openAgent(ctx, d, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	sup := agent.NewSupervisor(s.loop, cfg.Agent().Concurrency, logger)
	outcomes, runErr := sup.RunAll(ctx, objectives)

	var finished []*agent.Outcome
	incomplete := 0
	for _, out := range outcomes {
		if out == nil {
			incomplete++
			continue
		}
		printOutcome(w, out)
		finished = append(finished, out)
		if out.Status != agent.StatusCompleted {
			incomplete++
		}
	}

	if transcript != "" && len(finished) > 0 {
		if err := writeTranscript(transcript, finished...); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if incomplete > 0 {
		return fmt.Errorf("%w: %d of %d objectives", errIncomplete, incomplete, len(objectives))
	}
	return nil
}
