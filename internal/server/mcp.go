package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// MCPFrontend serves the aggregated catalog as an MCP server.
type MCPFrontend struct {
	agg     Aggregator
	server  *mcpserver.MCPServer
	handler http.Handler

	mu sync.Mutex
	// published maps namespaced tool names to the content hash last added.
	published map[string]string
}

// NewMCPFrontend creates the MCP server for agg.
func NewMCPFrontend(agg Aggregator, version string) *MCPFrontend {
	if version == "" {
		version = "dev"
	}
	f := &MCPFrontend{
		agg:       agg,
		published: make(map[string]string),
	}

	hooks := &mcpserver.Hooks{}
	hooks.AddBeforeListTools(func(ctx context.Context, id any, message *mcp.ListToolsRequest) {
		f.Sync()
	})
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest) {
		f.Sync()
	})

	f.server = mcpserver.NewMCPServer(
		"mcpgateway",
		version,
		mcpserver.WithHooks(hooks),
		mcpserver.WithToolCapabilities(true),
	)
	f.handler = mcpserver.NewStreamableHTTPServer(f.server)
	return f
}

// Handler returns the streamable HTTP handler.
func (f *MCPFrontend) Handler() http.Handler { return f.handler }

// Sync brings the advertised tools in line with the catalog: tools of
// servers that went away are deleted, new or changed tools are added.
func (f *MCPFrontend) Sync() {
	catalog := f.agg.Catalog()

	f.mu.Lock()
	defer f.mu.Unlock()

	current := make(map[string]bool, len(catalog))
	var toAdd []mcpserver.ServerTool
	for _, t := range catalog {
		current[t.NamespacedName] = true
		if hash, ok := f.published[t.NamespacedName]; ok && hash == t.ContentHash {
			continue
		}
		toAdd = append(toAdd, f.serverTool(t))
		f.published[t.NamespacedName] = t.ContentHash
	}

	var toDelete []string
	for name := range f.published {
		if !current[name] {
			toDelete = append(toDelete, name)
			delete(f.published, name)
		}
	}

	if len(toDelete) > 0 {
		f.server.DeleteTools(toDelete...)
	}
	if len(toAdd) > 0 {
		f.server.AddTools(toAdd...)
	}
	if len(toDelete) > 0 || len(toAdd) > 0 {
		logging.Debug("MCPFrontend", "Catalog synced: %d added or updated, %d removed", len(toAdd), len(toDelete))
	}
}

func (f *MCPFrontend) serverTool(t *api.ToolRecord) mcpserver.ServerTool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}
	name := t.NamespacedName
	return mcpserver.ServerTool{
		Tool: mcp.NewToolWithRawSchema(name, t.Description, schema),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := f.agg.Call(ctx, api.CallToolRequest{Name: name, Arguments: req.GetArguments()})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return &mcp.CallToolResult{Content: resp.Content, IsError: resp.IsError}, nil
		},
	}
}
