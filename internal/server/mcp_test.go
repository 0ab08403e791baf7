package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"
)

func toolNames(tools []mcp.Tool) []string {
	var names []string
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func TestMCPFrontend_ServesCatalog(t *testing.T) {
	agg := newFakeAggregator()
	agg.setCatalog(
		&api.ToolRecord{NamespacedName: "github.create_issue", Description: "Create an issue",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}}}`), ContentHash: "h1", IsExternal: true},
		&api.ToolRecord{NamespacedName: "weather.forecast", ContentHash: "h2", IsExternal: true},
	)
	agg.callResp = &api.CallToolResponse{Content: []mcp.Content{mcp.NewTextContent("created")}}
	ts := newTestServer(t, agg)

	ctx := context.Background()
	c := mcpserver.NewStreamableHTTPClient(ts.URL+"/mcp", nil, nil)
	require.NoError(t, c.Initialize(ctx))
	defer c.Close()

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"github.create_issue", "weather.forecast"}, toolNames(tools))

	res, err := c.CallTool(ctx, "github.create_issue", map[string]interface{}{"title": "bug"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	assert.Equal(t, "created", text.Text)

	call := agg.observed().lastCall
	assert.Equal(t, "github.create_issue", call.Name)
	assert.Equal(t, "bug", call.Arguments["title"])

	// A server going away removes its tools from the next listing.
	agg.setCatalog(&api.ToolRecord{NamespacedName: "weather.forecast", ContentHash: "h2", IsExternal: true})
	tools, err = c.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather.forecast"}, toolNames(tools))
}

func TestMCPFrontend_GatewayErrorsBecomeToolErrors(t *testing.T) {
	agg := newFakeAggregator()
	agg.setCatalog(&api.ToolRecord{NamespacedName: "github.create_issue", ContentHash: "h1", IsExternal: true})
	agg.err = api.ErrServerUnavailable("github", api.StatusError)
	ts := newTestServer(t, agg)

	ctx := context.Background()
	c := mcpserver.NewStreamableHTTPClient(ts.URL+"/mcp", nil, nil)
	require.NoError(t, c.Initialize(ctx))
	defer c.Close()

	res, err := c.CallTool(ctx, "github.create_issue", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, string(api.CodeServerUnavailable))
}

func TestMCPFrontend_SyncOnlyRepublishesChangedTools(t *testing.T) {
	agg := newFakeAggregator()
	f := NewMCPFrontend(agg, "")

	agg.setCatalog(&api.ToolRecord{NamespacedName: "a.x", ContentHash: "1"})
	f.Sync()
	assert.Equal(t, map[string]string{"a.x": "1"}, f.published)

	agg.setCatalog(&api.ToolRecord{NamespacedName: "a.x", ContentHash: "2"}, &api.ToolRecord{NamespacedName: "b.y", ContentHash: "3"})
	f.Sync()
	assert.Equal(t, map[string]string{"a.x": "2", "b.y": "3"}, f.published)

	agg.setCatalog()
	f.Sync()
	assert.Empty(t, f.published)
}
