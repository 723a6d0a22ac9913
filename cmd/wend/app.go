package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wendlabs/wend/internal/action"
	"github.com/wendlabs/wend/internal/config"
	"github.com/wendlabs/wend/internal/engine"
	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/logging"
	"github.com/wendlabs/wend/internal/policy"
	"github.com/wendlabs/wend/internal/prompt"
	"github.com/wendlabs/wend/internal/signal"
	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/internal/validation"
	"github.com/wendlabs/wend/internal/workflow"
)

// loadConfig builds the effective configuration, applying the global log
// flags on top of whatever the file and environment provided.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr so stdout stays clean for
// command output.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	h, err := logging.NewHandler(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

// ensureDirs creates the working directories the engine reads and writes.
// LoadDir and the prompt registry treat a missing directory as an error, so
// a fresh home is materialized before anything touches it.
func ensureDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.Dirs.Workflows, cfg.Dirs.Prompts, cfg.Dirs.Signals} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// openStore opens the configured run archive and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemoryStore()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		ls, err := store.NewLibSQLStore(storeDSN(cfg.Store.Path))
		if err != nil {
			return nil, err
		}
		st = ls
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// storeDSN turns a configured filesystem path into the file URI the libsql
// driver expects. Paths that already carry a scheme pass through so remote
// DSNs keep working.
func storeDSN(path string) string {
	if strings.Contains(path, ":") {
		return path
	}
	return "file:" + path
}

// loadRegistry loads every definition in the workflows directory and rejects
// the boot if any of them fails validation. Half-loaded registries hide
// typos until a run reaches the broken state; failing early keeps that at
// startup.
func loadRegistry(cfg *config.Config, eval *expressions.Evaluator) (*workflow.Registry, error) {
	defs, err := workflow.LoadDir(cfg.Dirs.Workflows)
	if err != nil {
		return nil, err
	}
	v, err := validation.NewWorkflowValidator(eval)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := v.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}
	return workflow.NewRegistry(defs...)
}

// runtime bundles the wired engine stack shared by run and serve.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	registry *workflow.Registry
	signals  *signal.FileSource
	engine   *engine.Engine
	hub      *events.Hub
}

// buildRuntime assembles the full stack: config, logger, store, validated
// registry, dispatcher, engine. Events fan out to the archive writer and an
// in-process hub for live subscribers.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureDirs(cfg); err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	eval, err := expressions.NewEvaluator()
	if err != nil {
		st.Close()
		return nil, err
	}
	registry, err := loadRegistry(cfg, eval)
	if err != nil {
		st.Close()
		return nil, err
	}

	signals := signal.NewFileSource(cfg.Dirs.Signals)
	prompts := prompt.NewRegistry(cfg.Dirs.Prompts)
	pol := policy.New(cfg.Shell.DenyPatterns, cfg.Shell.AllowedRoots, cfg.Shell.MaxCommandLength)
	dispatcher := action.NewDispatcher(prompts, pol, eval, signals, nil, logger, action.Config{
		ShellTimeout:    cfg.Shell.Timeout(),
		MaxShellTimeout: cfg.Shell.TimeoutCap(),
		ShellGrace:      cfg.Shell.Grace(),
		MaxOutputSize:   cfg.Shell.MaxOutputSize,
		PollInterval:    cfg.Engine.Poll(),
	})

	hub := events.NewHub()
	eng, err := engine.New(engine.Options{
		Definitions: registry,
		Dispatcher:  dispatcher,
		Evaluator:   eval,
		Signals:     signals,
		Sink:        events.MultiSink{store.NewEventWriter(st, logger), hub},
		Recorder:    st,
		Logger:      logger,
		Config: engine.Config{
			MaxVisits:      cfg.Engine.MaxVisits,
			MaxRetries:     cfg.Engine.MaxRetries,
			RetryBaseDelay: cfg.Engine.BaseDelay(),
			RetryMaxDelay:  cfg.Engine.MaxDelay(),
			MaxDepth:       cfg.Engine.MaxDepth,
			PollInterval:   cfg.Engine.Poll(),
		},
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		signals:  signals,
		engine:   eng,
		hub:      hub,
	}, nil
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("close store", "error", err)
	}
}

// parseVarFlags turns repeated name=value flags into initial run variables.
// Values stay strings; guards and assignments coerce them as needed.
func parseVarFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(data))
	return err
}
