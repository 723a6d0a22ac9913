package main

import (
	"github.com/spf13/cobra"
)

var eventsSince int64

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Print the archived event log of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		evs, err := st.ListEvents(ctx, args[0], eventsSince)
		if err != nil {
			return err
		}
		return printJSON(evs)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int64Var(&eventsSince, "since", 0, "only events with a sequence number above this")
}
