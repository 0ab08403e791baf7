// Package aggregator is the core of the gateway. It registers external MCP
// servers, connects to them, keeps their tool catalogs current, monitors
// their health and routes tool calls to them.
//
// # Components
//
//	┌──────────────┐   register/connect   ┌────────────────┐
//	│   Manager    │─────────────────────>│ ServerRegistry │  records + status machine
//	└──────────────┘                      └────────────────┘
//	   │     │    │
//	   │     │    └──> SessionManager     the only owner of live sessions
//	   │     └───────> Discovery ──> ToolIndex ──> ClassificationQueue ──> Classifier / SearchIndex
//	   └─────────────> HealthMonitor      periodic probes, DEGRADED / ERROR transitions
//
//	call(tool) ──> Gateway ──> Resolver ──> SessionManager.CallTool
//
// The Manager wires the components together and is what the HTTP server and
// the CLI talk to. Every other type is usable on its own, which is how the
// tests exercise them.
//
// # Concurrency
//
// Registry mutations are serialized per server; reads return immutable
// snapshots and never wait for a mutation. Calls on different servers run
// fully in parallel, and several calls may share one session. A health
// sweep never holds a lock while a call executes.
//
// # Naming
//
// External tools are exposed as "{server_name}.{original_name}". Server names
// cannot contain dots, so the first dot always separates the two parts and
// an original name such as "api.v2.create" survives the round trip.
package aggregator
