package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skeinflow/skein/internal/engine"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/internal/tools"
)

// SkeinServerDeps holds the dependencies for creating a SkeinServer.
type SkeinServerDeps struct {
	Lifecycle *engine.Lifecycle
	Store     store.Store
	Registry  *tools.Registry
	Logger    *slog.Logger
}

// SkeinServer wraps an MCP server with skein-specific tool handlers, so an
// LLM planner can drive the execution core over the MCP protocol.
type SkeinServer struct {
	lifecycle *engine.Lifecycle
	store     store.Store
	registry  *tools.Registry
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewSkeinServer creates a new SkeinServer with all 5 tools registered.
func NewSkeinServer(deps SkeinServerDeps) *SkeinServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &SkeinServer{
		lifecycle: deps.Lifecycle,
		store:     deps.Store,
		registry:  deps.Registry,
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"skein",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Skein executes agent workflow graphs. Use skein.execute to start a run, skein.status to check progress and read the trail, skein.respond to answer a run waiting for user input, skein.cancel to stop a run, and skein.tools to list the tools available to graph nodes."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *SkeinServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *SkeinServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the run-to-session registry for notification wiring.
func (s *SkeinServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *SkeinServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: respondTool(), Handler: s.handleRespond},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: toolsTool(), Handler: s.handleTools},
	}
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool("skein.execute",
		mcp.WithDescription("Start a workflow run from a stored graph or an inline definition"),
		mcp.WithString("graph_id", mcp.Description("ID of a stored graph to execute")),
		mcp.WithObject("definition", mcp.Description("Inline graph definition (nodes, edges, max_rounds)")),
		mcp.WithObject("input", mcp.Description("Initiating input handed to the entry nodes")),
	)
}

func respondTool() mcp.Tool {
	return mcp.NewTool("skein.respond",
		mcp.WithDescription("Deliver a user response to a run that is waiting for one"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the waiting run")),
		mcp.WithString("response", mcp.Required(), mcp.Description("The user's answer to the pending prompt")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("skein.status",
		mcp.WithDescription("Get run status, output, pending prompt and execution trail"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("skein.cancel",
		mcp.WithDescription("Cancel a pending, running or waiting run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to cancel")),
	)
}

func toolsTool() mcp.Tool {
	return mcp.NewTool("skein.tools",
		mcp.WithDescription("List the tools available to workflow graph nodes"),
	)
}
