package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/diagram"
	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/internal/workflow"
	"github.com/wendlabs/wend/pkg/schema"
)

var (
	graphFormat string
	graphRunID  string
)

var graphCmd = &cobra.Command{
	Use:   "graph <workflow>",
	Short: "Render a workflow as a Mermaid or DOT diagram",
	Long: `Graph renders a workflow's state machine as a diagram on stdout. With
--run the diagram is overlaid with the path an archived run took: visited
states, visit counts on revisited states, and the final or failed state.

Examples:
  wend graph deploy
  wend graph deploy --format dot
  wend graph deploy --run 0d2f8c1a`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defs, err := workflow.LoadDir(cfg.Dirs.Workflows)
		if err != nil {
			return err
		}
		registry, err := workflow.NewRegistry(defs...)
		if err != nil {
			return err
		}
		def, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		model := diagram.Build(def)
		if graphRunID != "" {
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			path, err := loadRunPath(ctx, st, graphRunID)
			if err != nil {
				return err
			}
			model.ApplyPath(path)
		}

		switch graphFormat {
		case "mermaid":
			fmt.Print(diagram.RenderMermaid(model))
		case "dot":
			fmt.Print(diagram.RenderDOT(model))
		default:
			return fmt.Errorf("unknown graph format %q: want mermaid or dot", graphFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&graphFormat, "format", "mermaid", "output format (mermaid, dot)")
	graphCmd.Flags().StringVar(&graphRunID, "run", "", "overlay the path taken by this archived run")
}

// loadRunPath reconstructs where a run went from its archived events.
func loadRunPath(ctx context.Context, st store.Store, runID string) (diagram.RunPath, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return diagram.RunPath{}, err
	}
	evs, err := st.ListEvents(ctx, runID, 0)
	if err != nil {
		return diagram.RunPath{}, err
	}
	var entered []string
	for _, ev := range evs {
		if ev.Type == schema.EventStateEntered {
			entered = append(entered, ev.StateID)
		}
	}
	failed := run.Outcome == schema.OutcomeFailed || run.Outcome == schema.OutcomeAborted
	return diagram.PathOf(entered, run.FinalState, failed), nil
}
