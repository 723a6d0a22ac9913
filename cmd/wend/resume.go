package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/signal"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow>",
	Short: "Wake a workflow suspended on a wait-for-signal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		signals := signal.NewFileSource(cfg.Dirs.Signals)
		if err := signals.RaiseResume(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("resume raised for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
