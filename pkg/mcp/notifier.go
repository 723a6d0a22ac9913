package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/wendlabs/wend/pkg/schema"
)

// RunNotifier pushes run-completion notifications to the client that
// detached a run. The tool call returned long before the outcome existed;
// the notification closes that gap.
type RunNotifier struct {
	mcpServer *server.MCPServer
}

// NewRunNotifier creates a notifier bound to the given MCP server.
func NewRunNotifier(mcpServer *server.MCPServer) *RunNotifier {
	return &RunNotifier{mcpServer: mcpServer}
}

// RunFinished reports a detached run's terminal outcome. The MCP session
// rides the context, so the notification lands on the session that issued
// the run call. Best-effort: a client that disconnected before the run
// finished is fine, the outcome is still in the run archive.
func (n *RunNotifier) RunFinished(ctx context.Context, res *schema.RunResult) {
	if n == nil || n.mcpServer == nil || res == nil {
		return
	}
	payload := map[string]any{
		"type":        "run_finished",
		"run_id":      res.RunID,
		"workflow":    res.Workflow,
		"outcome":     string(res.Outcome),
		"final_state": res.FinalState,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Message
	}
	_ = n.mcpServer.SendNotificationToClient(ctx, "notifications/message", payload)
}
