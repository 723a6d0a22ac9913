package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/pkg/schema"
)

var (
	runVars  []string
	runQuiet bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow to its terminal outcome",
	Long: `Run executes a workflow from its start state until it completes, fails,
or is aborted. The result is printed to stdout as JSON; state progress goes
to stderr. The exit code reflects the outcome: 0 completed, 1 failed,
130 aborted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		vars, err := parseVarFlags(runVars)
		if err != nil {
			return err
		}

		name := args[0]
		var stopProgress func()
		if !runQuiet {
			stopProgress = watchProgress(ctx, rt.hub, name)
		}

		res, err := rt.engine.Run(ctx, name, vars)
		if stopProgress != nil {
			stopProgress()
		}
		if err != nil {
			return err
		}

		if err := printJSON(res); err != nil {
			return err
		}
		switch res.Outcome {
		case schema.OutcomeCompleted:
			return nil
		case schema.OutcomeAborted:
			return &exitError{code: 130}
		default:
			return &exitError{code: 1}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "initial variable as name=value (repeatable)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress state progress on stderr")
}

// watchProgress subscribes to the event hub and prints state progress to
// stderr while the run executes. The returned stop function drains whatever
// the hub already buffered so the tail of the run still prints, then
// returns once the printer goroutine is done.
func watchProgress(ctx context.Context, hub *events.Hub, workflowName string) func() {
	ch, cancel, err := hub.Subscribe(ctx, events.Filter{
		Workflow: workflowName,
		Types: []string{
			schema.EventStateEntered,
			schema.EventActionRetrying,
			schema.EventWaitStarted,
			schema.EventWaitResumed,
		},
	})
	if err != nil {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-ch:
				printProgress(ev)
			case <-stop:
				for {
					select {
					case ev := <-ch:
						printProgress(ev)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		cancel()
		close(stop)
		<-done
	}
}

func printProgress(ev events.Event) {
	switch ev.Type {
	case schema.EventStateEntered:
		fmt.Fprintf(os.Stderr, "  -> %s\n", ev.StateID)
	case schema.EventActionRetrying:
		fmt.Fprintf(os.Stderr, "  .. retrying %s\n", ev.StateID)
	case schema.EventWaitStarted:
		fmt.Fprintf(os.Stderr, "  .. waiting at %s\n", ev.StateID)
	case schema.EventWaitResumed:
		fmt.Fprintf(os.Stderr, "  .. resumed at %s\n", ev.StateID)
	}
}
