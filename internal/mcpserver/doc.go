// Package mcpserver implements the transport adapters that open sessions to
// external MCP servers.
//
// The set of transports is closed: STDIO spawns a subprocess and speaks MCP
// over its stdin/stdout, SSE connects to a Server-Sent Events endpoint and
// HTTP uses the streamable-HTTP transport. All three are built on
// github.com/mark3labs/mcp-go and exposed through the single MCPClient
// interface, so the aggregator never branches on the transport type.
//
// Adapter.Open is the only entry point used by the aggregator. It resolves
// secret references in the connection config, enforces TLS for remote
// transports, attaches OAuth2 client credentials when configured and
// performs the MCP initialize handshake.
package mcpserver
