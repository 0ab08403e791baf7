package api

import "strings"

// ServerStatus is the lifecycle state of an external server.
type ServerStatus string

const (
	StatusDisconnected ServerStatus = "DISCONNECTED"
	StatusConnecting   ServerStatus = "CONNECTING"
	StatusConnected    ServerStatus = "CONNECTED"
	StatusDegraded     ServerStatus = "DEGRADED"
	StatusError        ServerStatus = "ERROR"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ServerStatus{
	StatusDisconnected,
	StatusConnecting,
	StatusConnected,
	StatusDegraded,
	StatusError,
}

// transitions is the closed set of legal status changes. Any pair not listed
// here is rejected by the registry.
var transitions = map[ServerStatus][]ServerStatus{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusError, StatusDisconnected},
	StatusConnected:    {StatusDisconnected, StatusDegraded, StatusError},
	StatusDegraded:     {StatusConnected, StatusError, StatusDisconnected},
	StatusError:        {StatusConnecting, StatusDisconnected},
}

// Valid reports whether s is a known status.
func (s ServerStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s ServerStatus) CanTransitionTo(next ServerStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Available reports whether a server in this status accepts tool calls.
func (s ServerStatus) Available() bool {
	return s == StatusConnected || s == StatusDegraded
}

// ParseServerStatus converts a query parameter into a status. Matching is
// case-insensitive.
func ParseServerStatus(s string) (ServerStatus, bool) {
	for _, st := range AllStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}
