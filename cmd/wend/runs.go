package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/pkg/schema"
)

var (
	runsWorkflow string
	runsStatus   string
	runsOutcome  string
	runsSince    string
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		filter := store.RunFilter{
			Workflow: runsWorkflow,
			Status:   schema.RunStatus(runsStatus),
			Outcome:  schema.RunOutcome(runsOutcome),
			Limit:    runsLimit,
		}
		if runsSince != "" {
			since, err := time.Parse(time.RFC3339, runsSince)
			if err != nil {
				return fmt.Errorf("invalid --since %q: want RFC 3339", runsSince)
			}
			filter.Since = &since
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVar(&runsWorkflow, "workflow", "", "only runs of this workflow")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "only runs with this status (pending, running, waiting, completed, failed, aborted)")
	runsCmd.Flags().StringVar(&runsOutcome, "outcome", "", "only runs with this outcome (completed, failed, aborted)")
	runsCmd.Flags().StringVar(&runsSince, "since", "", "only runs started at or after this RFC 3339 time")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
}
