package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/deskpilot/internal/agent"
)

// newReplayCmd creates the `replay` command. It works offline and needs no
// desktop, oracle or database.
func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay TRANSCRIPT",
		Short: "Print the history of a saved run transcript",
		Long: `Reads a transcript written by 'run --transcript' and prints the history
exactly as the oracle saw it at the end of the run.`,
		Args: cobra.ExactArgs(1),
		// Replay needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := readTranscript(args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// printHistory writes the full history of out followed by its summary line.
func printHistory(w io.Writer, out *agent.Outcome) {
	fmt.Fprintf(w, "Run %s (%s)\n", out.RunID, out.Variant)
	fmt.Fprint(w, strings.Join(out.History(), "\n"))
	fmt.Fprintln(w)
	printOutcome(w, out)
}
