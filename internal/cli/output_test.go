package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mcpgateway/internal/api"
	"mcpgateway/internal/client"
)

func sampleServers() *api.ServerList {
	return &api.ServerList{
		Servers: []*api.ServerRecord{
			{
				ID:               "srv-1",
				Name:             "github",
				TransportType:    api.TransportHTTP,
				ConnectionConfig: api.ConnectionConfig{BaseURL: "https://gh.example.com/mcp"},
				Status:           api.StatusConnected,
				ToolCount:        3,
				AutoConnect:      true,
			},
			{
				ID:            "srv-2",
				Name:          "files",
				TransportType: api.TransportStdio,
				ConnectionConfig: api.ConnectionConfig{
					Command: "mcp-files",
				},
				Status:       api.StatusError,
				ErrorMessage: "exit status 1",
			},
		},
		Total: 2,
	}
}

func TestValidateOutputFormat(t *testing.T) {
	for _, in := range []string{"table", "WIDE", "json", "yaml"} {
		_, err := ValidateOutputFormat(in)
		assert.NoError(t, err, in)
	}
	_, err := ValidateOutputFormat("xml")
	assert.Error(t, err)
}

func TestPrinter_ServersTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", false, false)

	require.NoError(t, p.Servers(sampleServers()))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "github")
	assert.Contains(t, out, "CONNECTED")
	assert.Contains(t, out, "ERROR")
	assert.NotContains(t, out, "gh.example.com")
}

func TestPrinter_ServersWideAndNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "wide", true, false)

	require.NoError(t, p.Servers(sampleServers()))
	out := buf.String()
	assert.NotContains(t, out, "NAME")
	assert.Contains(t, out, "https://gh.example.com/mcp")
	assert.Contains(t, out, "mcp-files")
	assert.Contains(t, out, "exit status 1")
}

func TestPrinter_EmptyServers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", false, false)

	require.NoError(t, p.Servers(&api.ServerList{}))
	assert.Equal(t, "No servers registered\n", buf.String())
}

func TestPrinter_JSONUsesAPIFieldNames(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "json", false, false)

	require.NoError(t, p.Servers(sampleServers()))
	var decoded api.ServerList
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Total)
	assert.Contains(t, buf.String(), `"transport_type": "HTTP"`)
}

func TestPrinter_YAMLUsesAPIFieldNames(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "yaml", false, false)

	require.NoError(t, p.Health(&api.HealthReport{Status: api.HealthDegraded, TotalServers: 2, AvailableServers: 1}))
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "degraded", decoded["status"])
	assert.Equal(t, 1, decoded["available_servers"])
}

func TestPrinter_SearchResultsMarksLocalTools(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", false, false)

	res := &api.SearchResponse{
		Results: []api.SearchResult{
			{ToolRecord: &api.ToolRecord{NamespacedName: "github.create_issue", Description: "Create an issue"},
				SourceServer: &api.SourceServer{ID: "srv-1", Name: "github", Status: api.StatusConnected}},
			{ToolRecord: &api.ToolRecord{NamespacedName: "echo", Description: "Echo input"}},
		},
		Total: 2,
	}
	require.NoError(t, p.SearchResults(res))
	out := buf.String()
	assert.Contains(t, out, "github.create_issue")
	assert.Contains(t, out, "(local)")
}

func TestPrinter_ToolsSortedByName(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", true, false)

	list := &api.ToolList{Tools: []*api.ToolRecord{
		{NamespacedName: "gh.b"},
		{NamespacedName: "gh.a"},
	}}
	require.NoError(t, p.Tools(list))
	out := buf.String()
	assert.Less(t, strings.Index(out, "gh.a"), strings.Index(out, "gh.b"))
}

func TestPrinter_CallResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "wide", false, false)

	res := &client.CallResult{
		Content: []json.RawMessage{
			json.RawMessage(`{"type":"text","text":"hello"}`),
			json.RawMessage(`{"type":"image","data":"AA==","mimeType":"image/png"}`),
		},
		Metadata: api.CallMetadata{RoutedTo: "github", ServerID: "srv-1", OriginalToolName: "echo", Strategy: api.StrategyNamespaceResolved},
	}
	require.NoError(t, p.CallResult(res))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "hello\n"))
	assert.Contains(t, out, `"mimeType":"image/png"`)
	assert.Contains(t, out, "routed to github (srv-1)")
}

func TestPrinter_CallResultToolError(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", false, false)

	res := &client.CallResult{
		Content:  []json.RawMessage{json.RawMessage(`{"type":"text","text":"bad input"}`)},
		IsError:  true,
		Metadata: api.CallMetadata{OriginalToolName: "echo"},
	}
	err := p.CallResult(res)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "bad input")
}

func TestPrinter_StateAndRefresh(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "table", false, false)

	require.NoError(t, p.State(&api.AggregatorState{
		TotalServers:    1,
		ServersByStatus: map[api.ServerStatus]int{api.StatusConnected: 1},
		TotalTools:      4,
		Servers:         []api.ServerSummary{{ID: "srv-1", Name: "github", Status: api.StatusConnected, ToolCount: 4}},
		GeneratedAt:     time.Now(),
	}))
	require.NoError(t, p.Refresh(&api.RefreshResult{ServerID: "srv-1", ToolCount: 4, Added: 1, Unchanged: 3}))

	out := buf.String()
	assert.Contains(t, out, "Servers CONNECTED")
	assert.Contains(t, out, "Refreshed srv-1: 4 tools (1 added, 0 updated, 0 removed, 3 unchanged)")
}

func TestPrinter_ColorOnlyWhenEnabled(t *testing.T) {
	plain := NewPrinter(&bytes.Buffer{}, "table", false, false)
	colored := NewPrinter(&bytes.Buffer{}, "table", false, true)

	assert.Equal(t, "CONNECTED", plain.status(api.StatusConnected))
	assert.Contains(t, colored.status(api.StatusConnected), "CONNECTED")
}
