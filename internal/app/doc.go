// Package app bootstraps and runs the gateway process behind the serve
// command.
//
// Bootstrap happens in two phases. NewApplication loads and validates the
// configuration, initializes logging and wires the services: the store,
// the skill classifier and search index clients, the transport adapter,
// the aggregator manager, the server definition loader and the HTTP
// server. Run then starts everything, notifies systemd that the service is
// ready and blocks until the context is cancelled or SIGINT/SIGTERM
// arrives, after which the services are shut down in reverse order.
package app
