// Package client is a typed client for the gateway's HTTP API, used by the
// CLI commands.
//
// API failures are returned as *api.Error reconstructed from the error
// envelope, so callers can branch on api.IsCode exactly as in-process code
// does. Transport failures are returned wrapped and unclassified.
package client
