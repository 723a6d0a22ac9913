package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wendlabs/wend/internal/engine"
	"github.com/wendlabs/wend/internal/signal"
	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/internal/workflow"
	"github.com/wendlabs/wend/pkg/schema"
)

// Runner is the engine surface the tools drive.
type Runner interface {
	Run(ctx context.Context, workflow string, vars map[string]any) (*schema.RunResult, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Runner   Runner
	Registry *workflow.Registry
	Store    store.Store
	Signals  signal.Source
	Pool     *engine.Pool
	Logger   *slog.Logger
	Version  string
}

// Server wraps an MCP server with wend-specific tool handlers.
type Server struct {
	runner    Runner
	registry  *workflow.Registry
	store     store.Store
	signals   signal.Source
	pool      *engine.Pool
	logger    *slog.Logger
	notifier  *RunNotifier
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all 8 tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		runner:   deps.Runner,
		registry: deps.Registry,
		store:    deps.Store,
		signals:  deps.Signals,
		pool:     deps.Pool,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"wend",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Wend executes declarative state-machine workflows. Use wend.run to execute a workflow (detach: true runs it in the background), wend.status to inspect one archived run, wend.runs to list the run archive, wend.abort to stop a running workflow, wend.resume to release a workflow waiting for user input, wend.workflows to list loaded definitions, wend.parse to check an action phrase, and wend.graph to render a workflow as a diagram."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewRunNotifier(mcpSrv)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 8 registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: runsTool(), Handler: s.handleRuns},
		{Tool: abortTool(), Handler: s.handleAbort},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: workflowsTool(), Handler: s.handleWorkflows},
		{Tool: parseTool(), Handler: s.handleParse},
		{Tool: graphTool(), Handler: s.handleGraph},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("wend.run",
		mcp.WithDescription("Run a workflow to its terminal outcome"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of a loaded workflow definition")),
		mcp.WithObject("vars", mcp.Description("Initial variables for the run")),
		mcp.WithBoolean("detach", mcp.Description("Return immediately and execute on the run pool; completion arrives as a notification")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("wend.status",
		mcp.WithDescription("Get the archived record of a workflow run"),
		mcp.WithString("run_id", mcp.Description("ID of the run to query")),
		mcp.WithString("workflow", mcp.Description("Workflow name; returns its most recent run when run_id is omitted")),
		mcp.WithBoolean("with_events", mcp.Description("Include the run's event log")),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("wend.runs",
		mcp.WithDescription("List archived runs, newest first"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow, status, outcome, since, limit, offset)")),
	)
}

func abortTool() mcp.Tool {
	return mcp.NewTool("wend.abort",
		mcp.WithDescription("Request that a running workflow stop at its next state boundary"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the workflow to abort")),
		mcp.WithString("reason", mcp.Description("Why the abort was requested")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("wend.resume",
		mcp.WithDescription("Release a workflow suspended on a wait-for-user state"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the waiting workflow")),
	)
}

func workflowsTool() mcp.Tool {
	return mcp.NewTool("wend.workflows",
		mcp.WithDescription("List the loaded workflow definitions"),
	)
}

func parseTool() mcp.Tool {
	return mcp.NewTool("wend.parse",
		mcp.WithDescription("Parse an action phrase and return the typed action, or the structured parse error"),
		mcp.WithString("phrase", mcp.Required(), mcp.Description("Action phrase, e.g. 'run command \"make build\" timeout 30 seconds'")),
	)
}
