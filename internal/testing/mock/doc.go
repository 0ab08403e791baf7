// Package mock provides in-process MCP servers and a controllable clock for
// tests of the gateway.
//
// A Server is configured with ToolConfig entries. Each tool can return a
// fixed text, report a tool-level error, sleep, or block until released,
// which is enough to exercise discovery, routing, draining and error
// mapping without a real external server:
//
//	srv := mock.NewServer("github",
//		mock.ToolConfig{Name: "create_issue", Description: "Create an issue", Response: "ok"},
//	)
//	hs := mock.StartHTTPServer(t, srv, mock.HTTPTransportStreamableHTTP)
//	endpoint := hs.Endpoint()
//
// Servers can also be served over stdio from a test helper process with
// Server.ServeStdio.
package mock
