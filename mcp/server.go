// Package mcp serves the kernel's client-handled tools over the Model
// Context Protocol on stdio.
package mcp

import (
	"context"
	"io"
	"log"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hermitcrab/config"
	"hermitcrab/tools"
)

const ServerName = "hermitcrab"

const instructions = "Tools of a hermitcrab kernel: pscale coordinate memory, the memory directory, " +
	"the memory and changelog logs, web_fetch through the local relay, and date/time."

// Server exposes an executor's tools to one MCP client.
type Server struct {
	mcp      *server.MCPServer
	executor *tools.Executor
}

// NewServer registers every tool the executor holds.
func NewServer(executor *tools.Executor, version string) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithInstructions(instructions),
			server.WithRecovery(),
		),
		executor: executor,
	}

	for _, t := range executor.Tools() {
		tool, err := ConvertToolToMCP(t)
		if err != nil {
			return nil, err
		}
		s.mcp.AddTool(tool, s.handler(t.Name))
	}
	return s, nil
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		input, err := argumentsJSON(req)
		if err != nil {
			return mcptypes.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		out, err := s.executor.Call(ctx, name, input)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] %s failed: %v", name, err)
			}
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		return mcptypes.NewToolResultText(out), nil
	}
}

// Serve reads JSON-RPC from in and answers on out until ctx ends or in
// closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, errLog *log.Logger) error {
	stdio := server.NewStdioServer(s.mcp)
	if errLog != nil {
		stdio.SetErrorLogger(errLog)
	}
	return stdio.Listen(ctx, in, out)
}
