package mcpserver

import (
	"fmt"
	"net/http"

	"mcpgateway/internal/api"
)

// MCPClientConfig is the transport-neutral input to NewMCPClientFromType.
// All values are already rendered (no secret references left).
type MCPClientConfig struct {
	// Command, Args and Env configure STDIO servers.
	Command string
	Args    []string
	Env     map[string]string
	// URL is the SSE endpoint or the streamable-HTTP base URL.
	URL     string
	Headers map[string]string
	// HTTPClient, when set, replaces the default client for remote
	// transports (OAuth2 token injection).
	HTTPClient *http.Client
}

// NewMCPClientFromType creates an uninitialized client for the transport.
func NewMCPClientFromType(transportType api.TransportType, config MCPClientConfig) (MCPClient, error) {
	switch transportType {
	case api.TransportStdio:
		if config.Command == "" {
			return nil, fmt.Errorf("command is required for stdio type")
		}
		return NewStdioClient(config.Command, config.Args, config.Env), nil

	case api.TransportSSE:
		if config.URL == "" {
			return nil, fmt.Errorf("url is required for sse type")
		}
		return NewSSEClient(config.URL, config.Headers, config.HTTPClient), nil

	case api.TransportHTTP:
		if config.URL == "" {
			return nil, fmt.Errorf("base_url is required for http type")
		}
		return NewStreamableHTTPClient(config.URL, config.Headers, config.HTTPClient), nil

	default:
		return nil, fmt.Errorf("unsupported transport type: %s (supported: %s, %s, %s)",
			transportType, api.TransportStdio, api.TransportSSE, api.TransportHTTP)
	}
}
