// Package server exposes the gateway over HTTP.
//
// Routes:
//
//	POST   /api/v1/aggregator/servers                     register
//	GET    /api/v1/aggregator/servers?status=             list
//	GET    /api/v1/aggregator/servers/{id}                get (id or name)
//	DELETE /api/v1/aggregator/servers/{id}                remove
//	POST   /api/v1/aggregator/servers/{id}/connect        connect
//	POST   /api/v1/aggregator/servers/{id}/disconnect     disconnect {force}
//	GET    /api/v1/aggregator/servers/{id}/tools          tools of one server
//	POST   /api/v1/aggregator/servers/{id}/tools/refresh  re-run discovery
//	GET    /api/v1/aggregator/state                       aggregate counts
//	GET    /api/v1/aggregator/health                      gateway health
//	POST   /api/v1/tools/call                             execute a tool
//	GET    /api/v1/tools/search                           search the catalog
//	GET    /metrics                                       prometheus
//	*      /mcp                                           MCP streamable HTTP endpoint
//
// Failures are written as {"error": {"code", "message", "detail", ...}} with
// the HTTP status derived from the error code.
//
// The /mcp endpoint serves the unified catalog to MCP clients. Its tool
// list is synchronised with the aggregator before every tools/list and
// tools/call request, and each tool call is routed through the execution
// gateway like a POST to /api/v1/tools/call.
package server
