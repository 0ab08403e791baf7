// Package api holds the shared vocabulary of the gateway: server and tool
// records, the server status state machine, typed errors, request and
// response payloads, and the collaborator interfaces (Store, Classifier,
// SearchIndex) that the aggregator consumes.
//
// The package has no dependencies on other internal packages so that the
// aggregator, the HTTP server, the store implementations and the CLI client
// can all share these types without import cycles.
//
// # Server lifecycle
//
//	register() ──> DISCONNECTED ──connect()──> CONNECTING ──ok──> CONNECTED
//	                                              │                 │  ▲
//	                                     retries exhausted   2 fails│  │success
//	                                              ▼                 ▼  │
//	                   reconnect() <──────────── ERROR <──3 fails── DEGRADED
//
// ServerStatus.CanTransitionTo is the single source of truth for legal
// transitions; the registry refuses anything else.
package api
