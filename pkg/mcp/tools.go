package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
	"github.com/wendlabs/wend/internal/diagram"
	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/pkg/schema"
)

// handleRun executes a workflow, either to its terminal outcome or detached
// on the run pool.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	vars := mcp.ParseStringMap(req, "vars", nil)

	if req.GetBool("detach", false) {
		if s.pool == nil {
			return mcp.NewToolResultError("detached runs need the serve-mode run pool"), nil
		}
		// The request context ends when this call returns; the run must not.
		runCtx := context.WithoutCancel(ctx)
		if submitErr := s.pool.Submit(runCtx, func(ctx context.Context) error {
			res, runErr := s.runner.Run(ctx, name, vars)
			if runErr != nil {
				s.logger.Error("detached run failed to start", "workflow", name, "error", runErr)
				return runErr
			}
			s.notifier.RunFinished(ctx, res)
			if res.Err != nil {
				return res.Err
			}
			return nil
		}); submitErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("detached run rejected: %v", submitErr)), nil
		}
		return marshalResult(map[string]any{
			"workflow": name,
			"detached": true,
		})
	}

	result, runErr := s.runner.Run(ctx, name, vars)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handleStatus returns the archived record of a run, selected by run_id or
// as the most recent run of a workflow.
func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	workflowName := req.GetString("workflow", "")

	var run *store.Run
	switch {
	case runID != "":
		r, getErr := s.store.GetRun(ctx, runID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
		}
		run = r
	case workflowName != "":
		runs, listErr := s.store.ListRuns(ctx, store.RunFilter{Workflow: workflowName, Limit: 1})
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", listErr)), nil
		}
		if len(runs) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no runs archived for workflow %q", workflowName)), nil
		}
		run = runs[0]
	default:
		return mcp.NewToolResultError("run_id or workflow is required"), nil
	}

	out := map[string]any{"run": run}
	if req.GetBool("with_events", false) {
		events, listErr := s.store.ListEvents(ctx, run.RunID, 0)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("event lookup failed: %v", listErr)), nil
		}
		out["events"] = events
	}
	return marshalResult(out)
}

// handleRuns lists archived runs matching an optional filter.
func (s *Server) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseStringMap(req, "filter", nil)

	var filter store.RunFilter
	if decErr := decodeFilter(raw, &filter); decErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid filter: %v", decErr)), nil
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	runs, listErr := s.store.ListRuns(ctx, filter)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// decodeFilter maps loosely typed tool arguments onto a filter struct,
// matching fields by json tag and accepting RFC3339 strings for times.
func decodeFilter(m map[string]any, target any) error {
	if m == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// handleAbort raises the abort signal for a workflow. A running instance
// picks it up at its next state boundary.
func (s *Server) handleAbort(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	reason := req.GetString("reason", "aborted via mcp")

	if raiseErr := s.signals.Raise(ctx, name, reason); raiseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("abort signal failed: %v", raiseErr)), nil
	}
	return marshalResult(map[string]any{
		"ok":       true,
		"workflow": name,
		"reason":   reason,
	})
}

// handleResume raises the resume marker that releases a wait-for-user state.
func (s *Server) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	if resumeErr := s.signals.RaiseResume(ctx, name); resumeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resume signal failed: %v", resumeErr)), nil
	}
	return marshalResult(map[string]any{
		"ok":       true,
		"workflow": name,
	})
}

// handleWorkflows lists the loaded workflow definitions.
func (s *Server) handleWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.registry.Names()
	workflows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		def, getErr := s.registry.Get(name)
		if getErr != nil {
			continue
		}
		workflows = append(workflows, map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"start":       def.Start,
			"states":      len(def.States),
		})
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

// handleParse parses an action phrase. A failed parse is the answer the
// agent asked for, so it comes back as a normal result rather than a tool
// error.
func (s *Server) handleParse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("phrase")
	if err != nil {
		return mcp.NewToolResultError("phrase is required"), nil
	}

	act, parseErr := phrase.Parse(text)
	if parseErr != nil {
		var pe *phrase.ParseError
		if errors.As(parseErr, &pe) {
			return marshalResult(map[string]any{"ok": false, "error": pe.WendError()})
		}
		return marshalResult(map[string]any{"ok": false, "error": map[string]any{"message": parseErr.Error()}})
	}
	return marshalResult(map[string]any{"ok": true, "action": schema.Describe(act)})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// handleGraph renders a workflow definition as a diagram, optionally
// overlaying the path an archived run took.
func (s *Server) handleGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	format := req.GetString("format", "mermaid")
	if format != "mermaid" && format != "dot" {
		return mcp.NewToolResultError("format must be mermaid or dot"), nil
	}

	def, defErr := s.registry.Get(name)
	if defErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", defErr)), nil
	}

	model := diagram.Build(def)
	if runID := req.GetString("run_id", ""); runID != "" {
		path, pathErr := s.runPath(ctx, runID)
		if pathErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", pathErr)), nil
		}
		model.ApplyPath(path)
	}

	switch format {
	case "dot":
		return mcp.NewToolResultText(diagram.RenderDOT(model)), nil
	default:
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	}
}

// runPath reconstructs where a run went from its archived events.
func (s *Server) runPath(ctx context.Context, runID string) (diagram.RunPath, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return diagram.RunPath{}, err
	}
	events, err := s.store.ListEvents(ctx, runID, 0)
	if err != nil {
		return diagram.RunPath{}, err
	}

	var entered []string
	for _, ev := range events {
		if ev.Type == schema.EventStateEntered {
			entered = append(entered, ev.StateID)
		}
	}
	failed := run.Outcome == schema.OutcomeFailed || run.Outcome == schema.OutcomeAborted
	return diagram.PathOf(entered, run.FinalState, failed), nil
}

func graphTool() mcp.Tool {
	return mcp.NewTool("wend.graph",
		mcp.WithDescription("Render a workflow as a diagram. Returns Mermaid flowchart syntax or Graphviz DOT"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the workflow to render")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "dot"),
			mcp.Description("Output format (default: mermaid)"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay the path this archived run took")),
	)
}
