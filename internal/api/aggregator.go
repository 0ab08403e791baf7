package api

import "time"

// AggregatorState is the snapshot returned by GET /api/v1/aggregator/state.
type AggregatorState struct {
	TotalServers    int                  `json:"total_servers"`
	ServersByStatus map[ServerStatus]int `json:"servers_by_status"`
	TotalTools      int                  `json:"total_tools"`
	ExternalTools   int                  `json:"external_tools"`
	AvailableTools  int                  `json:"available_tools"`
	ClassifiedTools int                  `json:"classified_tools"`
	ActiveSessions  int                  `json:"active_sessions"`
	InflightCalls   int64                `json:"inflight_calls"`
	PendingClassify int                  `json:"pending_classifications"`
	Servers         []ServerSummary      `json:"servers"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// ServerSummary is the per-server line in AggregatorState.
type ServerSummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       ServerStatus `json:"status"`
	ToolCount    int          `json:"tool_count"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// HealthStatus is the overall gateway health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is the response of GET /api/v1/aggregator/health.
//
// The gateway is healthy when every registered server that is expected to
// be connected is CONNECTED, degraded when some are DEGRADED or ERROR, and
// unhealthy when servers exist but none is available.
type HealthReport struct {
	Status           HealthStatus `json:"status"`
	TotalServers     int          `json:"total_servers"`
	AvailableServers int          `json:"available_servers"`
	DegradedServers  []string     `json:"degraded_servers,omitempty"`
	ErroredServers   []string     `json:"errored_servers,omitempty"`
	CheckedAt        time.Time    `json:"checked_at"`
}
