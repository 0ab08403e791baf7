// Package config loads the gateway configuration.
//
// Configuration lives in a single directory, by default ~/.config/mcpgateway.
// The directory holds:
//   - config.yaml, the gateway settings described by GatewayConfig
//   - servers/, optional YAML server definitions registered at startup
//   - gateway.db, the SQLite database when storage.driver is sqlite
//
// A missing config.yaml is not an error; defaults are used. Durations are
// written as Go duration strings:
//
//	listen: "127.0.0.1:8090"
//	limits:
//	  max_servers: 50
//	timeouts:
//	  connection: 30s
//	  request: 60s
//	health:
//	  interval: 30s
//	  auto_reconnect: true
//	storage:
//	  driver: sqlite
//
// The credential key is read from MCPGATEWAY_CREDENTIAL_KEY when set and
// is never logged.
package config
