package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wendlabs/wend/internal/engine"
	"github.com/wendlabs/wend/internal/scheduler"
	"github.com/wendlabs/wend/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP interface on stdio",
	Long: `Serve exposes the engine to MCP clients over stdio and keeps it running
until the client disconnects or the process receives SIGINT or SIGTERM.
Detached runs execute on a bounded pool, and any schedules in the
configuration fire while the server is up.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		pool := engine.NewPool(rt.cfg.Pool.Size)

		var sched *scheduler.Scheduler
		if len(rt.cfg.Schedules) > 0 {
			sched, err = scheduler.New(rt.cfg.Schedules, pool, rt.engine, rt.logger)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
		}

		srv := mcp.NewServer(mcp.ServerDeps{
			Runner:   rt.engine,
			Registry: rt.registry,
			Store:    rt.store,
			Signals:  rt.signals,
			Pool:     pool,
			Logger:   rt.logger,
			Version:  version,
		})

		rt.logger.Info("wend serving",
			"version", version,
			"workflows", rt.registry.Len(),
			"pool_size", rt.cfg.Pool.Size,
			"schedules", len(rt.cfg.Schedules))

		serveErr := srv.Serve(ctx)

		// Stop feeding the pool before draining it, so in-flight runs
		// still reach the archive.
		if sched != nil {
			if err := sched.Stop(); err != nil {
				rt.logger.Error("stop scheduler", "error", err)
			}
		}
		pool.Shutdown()

		if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
			return serveErr
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
