// Package server exposes the assistant as an MCP server over stdio.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/sprintpilot/internal/app"
)

// Server wraps the MCP server with dependencies and lifecycle management.
type Server struct {
	mcp    *mcp.Server
	app    *app.App
	tools  []*mcp.Tool
	logger *slog.Logger
}

const instructions = `SprintPilot is a team-planning assistant. Every tool takes a workspace_id.
Use "chat" to ask the assistant about capacity, backlog, schedules and projects;
pass the returned conversation_id back to continue a conversation.`

// New creates the MCP server with every assistant tool registered.
func New(version string, a *app.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    "sprintpilot",
		Version: version,
	}

	s := &Server{
		mcp:    mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		app:    a,
		logger: logger,
	}
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(logger))
	s.registerTools()
	return s
}

// Run serves stdio until the peer disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio", "tools", len(s.tools))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
