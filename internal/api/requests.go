package api

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// RegisterServerRequest is the body of POST /api/v1/aggregator/servers.
type RegisterServerRequest struct {
	Name             string           `json:"name" yaml:"name"`
	TransportType    string           `json:"transport_type" yaml:"transport_type"`
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection_config"`
	HealthCheckURL   string           `json:"health_check_url,omitempty" yaml:"health_check_url,omitempty"`
	AutoConnect      bool             `json:"auto_connect" yaml:"auto_connect"`
}

// DisconnectRequest is the body of POST /servers/{id}/disconnect.
type DisconnectRequest struct {
	Force bool `json:"force"`
}

// CallToolRequest is the body of POST /api/v1/tools/call.
type CallToolRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	ServerID  string                 `json:"server_id,omitempty"`
}

// RoutingStrategy records how a tool name was resolved to a server.
type RoutingStrategy string

const (
	StrategyExplicitServer    RoutingStrategy = "EXPLICIT_SERVER"
	StrategyNamespaceResolved RoutingStrategy = "NAMESPACE_RESOLVED"
	StrategyLookupResolved    RoutingStrategy = "LOOKUP_RESOLVED"
)

// RoutingContext is the ephemeral result of resolving one call.
type RoutingContext struct {
	ResolvedServerID string          `json:"resolved_server_id"`
	ServerName       string          `json:"server_name"`
	OriginalToolName string          `json:"original_tool_name"`
	Strategy         RoutingStrategy `json:"strategy"`
}

// CallMetadata describes the routing and timing of an executed call.
type CallMetadata struct {
	RoutedTo         string          `json:"routed_to"`
	ServerID         string          `json:"server_id"`
	OriginalToolName string          `json:"original_tool_name"`
	Strategy         RoutingStrategy `json:"strategy"`
	RoutingTimeMs    float64         `json:"routing_time_ms"`
	ExecutionTimeMs  float64         `json:"execution_time_ms"`
	TotalTimeMs      float64         `json:"total_time_ms"`
	Warning          string          `json:"warning,omitempty"`
}

// CallToolResponse is returned by the execution gateway. A remote tool
// error is reported with IsError set, not as a Go error.
type CallToolResponse struct {
	Content  []mcp.Content `json:"content"`
	IsError  bool          `json:"isError"`
	Metadata CallMetadata  `json:"metadata"`
}

// SearchRequest filters the unified catalog.
type SearchRequest struct {
	Query              string   `json:"q"`
	IncludeExternal    bool     `json:"include_external"`
	ServerFilter       []string `json:"server_filter,omitempty"`
	IncludeUnavailable bool     `json:"include_unavailable"`
	Limit              int      `json:"limit,omitempty"`
}

// SourceServer identifies the owner of an external search result.
type SourceServer struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status ServerStatus `json:"status"`
}

// SearchResult is one tool returned by search.
type SearchResult struct {
	*ToolRecord
	SourceServer *SourceServer `json:"source_server,omitempty"`
}

// ServerList is the response of GET /servers.
type ServerList struct {
	Servers []*ServerRecord `json:"servers"`
	Total   int             `json:"total"`
}

// ToolList is the response of tool listing endpoints.
type ToolList struct {
	Tools []*ToolRecord `json:"tools"`
	Total int           `json:"total"`
}

// SearchResponse is the response of GET /tools/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// RefreshResult summarizes one discovery run.
type RefreshResult struct {
	ServerID  string `json:"server_id"`
	ToolCount int    `json:"tool_count"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
}
