package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is an in-process MCP server with scripted tools.
type Server struct {
	name      string
	mcpServer *server.MCPServer

	mu      sync.Mutex
	calls   map[string]int
	started chan string
	release chan struct{}
}

// NewServer creates a mock server exposing the given tools.
func NewServer(name string, tools ...ToolConfig) *Server {
	s := &Server{
		name: name,
		mcpServer: server.NewMCPServer(
			fmt.Sprintf("mock-%s", name),
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		calls:   make(map[string]int),
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
	for _, tc := range tools {
		s.AddTool(tc)
	}
	return s
}

// Name returns the server name.
func (s *Server) Name() string {
	return s.name
}

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// AddTool registers or replaces a tool.
func (s *Server) AddTool(tc ToolConfig) {
	var tool mcp.Tool
	if tc.InputSchema != "" {
		tool = mcp.NewToolWithRawSchema(tc.Name, tc.Description, json.RawMessage(tc.InputSchema))
	} else {
		tool = mcp.NewTool(tc.Name, mcp.WithDescription(tc.Description))
	}
	s.mcpServer.AddTool(tool, s.createToolHandler(tc))
}

// RemoveTools deletes tools by name.
func (s *Server) RemoveTools(names ...string) {
	s.mcpServer.DeleteTools(names...)
}

// Calls returns how many times a tool was invoked.
func (s *Server) Calls(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[tool]
}

// Started delivers the name of every tool call as it begins.
func (s *Server) Started() <-chan string {
	return s.started
}

// Release unblocks every call waiting on a Block tool. It may be called once.
func (s *Server) Release() {
	close(s.release)
}

func (s *Server) createToolHandler(tc ToolConfig) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.Lock()
		s.calls[tc.Name]++
		s.mu.Unlock()

		select {
		case s.started <- tc.Name:
		default:
		}

		if tc.Delay > 0 {
			select {
			case <-time.After(tc.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if tc.Block {
			select {
			case <-s.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if tc.Error != "" {
			return mcp.NewToolResultError(tc.Error), nil
		}
		if tc.Response != "" {
			return mcp.NewToolResultText(tc.Response), nil
		}

		args, _ := json.Marshal(request.GetArguments())
		return mcp.NewToolResultText(string(args)), nil
	}
}

// ServeStdio serves the mock over the process's stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
