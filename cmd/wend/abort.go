package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/signal"
)

var abortReason string

var abortCmd = &cobra.Command{
	Use:   "abort <workflow>",
	Short: "Ask a running workflow to stop at its next state boundary",
	Long: `Abort raises the abort signal for a workflow. Runs of that workflow pick
the signal up at their next state boundary or suspension poll and finish
with the aborted outcome. Raising the signal with no run in flight is
harmless; the next run consumes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		signals := signal.NewFileSource(cfg.Dirs.Signals)
		if err := signals.Raise(cmd.Context(), args[0], abortReason); err != nil {
			return err
		}
		fmt.Printf("abort requested for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(abortCmd)
	abortCmd.Flags().StringVar(&abortReason, "reason", "aborted via cli", "why the abort was requested")
}
