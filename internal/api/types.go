package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// TransportType is the wire transport used to reach an external MCP server.
type TransportType string

const (
	TransportStdio TransportType = "STDIO"
	TransportSSE   TransportType = "SSE"
	TransportHTTP  TransportType = "HTTP"
)

// ParseTransportType accepts the canonical names as well as the lower-case
// aliases used in definition files ("stdio", "sse", "http", "streamable-http").
func ParseTransportType(s string) (TransportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stdio":
		return TransportStdio, nil
	case "sse":
		return TransportSSE, nil
	case "http", "streamable-http", "streamable_http":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("unsupported transport type %q (supported: stdio, sse, http)", s)
	}
}

// Valid reports whether t is one of the supported transports.
func (t TransportType) Valid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportHTTP:
		return true
	}
	return false
}

// Remote reports whether the transport talks to a network endpoint.
func (t TransportType) Remote() bool {
	return t == TransportSSE || t == TransportHTTP
}

// OAuthConfig configures the OAuth2 client-credentials grant for remote
// transports.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// ConnectionConfig holds the transport-specific settings for a server.
// String values may reference secrets as ${VAR} or {{ env "VAR" }}; they are
// substituted only when a connection is opened.
type ConnectionConfig struct {
	// STDIO
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// SSE
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// HTTP (streamable)
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// SSE and HTTP
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	OAuth   *OAuthConfig      `json:"oauth,omitempty" yaml:"oauth,omitempty"`
}

// RedactedValue replaces secret material in logs and API responses.
const RedactedValue = "[REDACTED]"

// Redacted returns a copy safe to log or return to API clients. Env values,
// header values and the OAuth client secret are masked; keys stay visible.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	out := c.Clone()
	for k := range out.Env {
		out.Env[k] = RedactedValue
	}
	for k := range out.Headers {
		out.Headers[k] = RedactedValue
	}
	if out.OAuth != nil && out.OAuth.ClientSecret != "" {
		out.OAuth.ClientSecret = RedactedValue
	}
	return out
}

// Clone returns a deep copy.
func (c ConnectionConfig) Clone() ConnectionConfig {
	out := c
	out.Args = slices.Clone(c.Args)
	out.Env = maps.Clone(c.Env)
	out.Headers = maps.Clone(c.Headers)
	if c.OAuth != nil {
		oauth := *c.OAuth
		oauth.Scopes = slices.Clone(c.OAuth.Scopes)
		out.OAuth = &oauth
	}
	return out
}

// Endpoint returns the address the transport connects to: the command for
// STDIO, the URL for SSE and the base URL for HTTP.
func (c ConnectionConfig) Endpoint(t TransportType) string {
	switch t {
	case TransportStdio:
		return c.Command
	case TransportSSE:
		return c.URL
	case TransportHTTP:
		return c.BaseURL
	}
	return ""
}

// ServerRecord is the registry entry for one external MCP server.
// Records handed out by the registry are immutable snapshots; mutate a Clone.
type ServerRecord struct {
	ID                        string           `json:"id"`
	Name                      string           `json:"name"`
	TransportType             TransportType    `json:"transport_type"`
	ConnectionConfig          ConnectionConfig `json:"connection_config"`
	HealthCheckURL            string           `json:"health_check_url,omitempty"`
	AutoConnect               bool             `json:"auto_connect"`
	Status                    ServerStatus     `json:"status"`
	ErrorMessage              string           `json:"error_message,omitempty"`
	ToolCount                 int              `json:"tool_count"`
	LastHealthCheck           *time.Time       `json:"last_health_check,omitempty"`
	ConsecutiveHealthFailures int              `json:"consecutive_health_failures"`
	RegisteredAt              time.Time        `json:"registered_at"`
	ConnectedAt               *time.Time       `json:"connected_at,omitempty"`
	UpdatedAt                 time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *ServerRecord) Clone() *ServerRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ConnectionConfig = r.ConnectionConfig.Clone()
	if r.LastHealthCheck != nil {
		t := *r.LastHealthCheck
		out.LastHealthCheck = &t
	}
	if r.ConnectedAt != nil {
		t := *r.ConnectedAt
		out.ConnectedAt = &t
	}
	return &out
}

// Redacted returns a copy with the connection config redacted.
func (r *ServerRecord) Redacted() *ServerRecord {
	out := r.Clone()
	if out != nil {
		out.ConnectionConfig = r.ConnectionConfig.Redacted()
	}
	return out
}

// ToolRecord describes one tool in the unified catalog.
type ToolRecord struct {
	ID             string          `json:"id"`
	NamespacedName string          `json:"namespaced_name"`
	OriginalName   string          `json:"original_name"`
	Description    string          `json:"description"`
	InputSchema    json.RawMessage `json:"input_schema,omitempty"`
	SourceServerID string          `json:"source_server_id,omitempty"`
	IsExternal     bool            `json:"is_external"`
	IsClassified   bool            `json:"is_classified"`
	SkillIDs       []string        `json:"skill_ids,omitempty"`
	PrimarySkillID string          `json:"primary_skill_id,omitempty"`
	ContentHash    string          `json:"content_hash,omitempty"`
	DiscoveredAt   time.Time       `json:"discovered_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (t *ToolRecord) Clone() *ToolRecord {
	if t == nil {
		return nil
	}
	out := *t
	out.InputSchema = slices.Clone(t.InputSchema)
	out.SkillIDs = slices.Clone(t.SkillIDs)
	return &out
}

// MaxSkillIDs bounds the number of skills a tool may be classified into.
const MaxSkillIDs = 3
