package aggregator

import (
	"mcpgateway/internal/api"
)

// StateService builds read-only views of the aggregator for the state and
// health endpoints.
type StateService struct {
	registry *ServerRegistry
	tools    *ToolIndex
	sessions *SessionManager
	queue    *ClassificationQueue
	clock    Clock
}

// NewStateService creates a state service.
func NewStateService(registry *ServerRegistry, tools *ToolIndex, sessions *SessionManager,
	queue *ClassificationQueue, clock Clock) *StateService {
	if clock == nil {
		clock = realClock{}
	}
	return &StateService{
		registry: registry,
		tools:    tools,
		sessions: sessions,
		queue:    queue,
		clock:    clock,
	}
}

// State returns a snapshot of servers, tools and sessions.
func (s *StateService) State() *api.AggregatorState {
	servers := s.registry.List(nil)

	state := &api.AggregatorState{
		TotalServers:    len(servers),
		ServersByStatus: make(map[api.ServerStatus]int, len(api.AllStatuses)),
		Servers:         make([]api.ServerSummary, 0, len(servers)),
		ActiveSessions:  s.sessions.Count(),
		InflightCalls:   s.sessions.Inflight(),
		GeneratedAt:     s.clock.Now(),
	}
	for _, st := range api.AllStatuses {
		state.ServersByStatus[st] = 0
	}

	available := make(map[string]bool, len(servers))
	for _, rec := range servers {
		state.ServersByStatus[rec.Status]++
		available[rec.ID] = rec.Status.Available()
		state.Servers = append(state.Servers, api.ServerSummary{
			ID:           rec.ID,
			Name:         rec.Name,
			Status:       rec.Status,
			ToolCount:    rec.ToolCount,
			ErrorMessage: rec.ErrorMessage,
		})
	}

	for _, t := range s.tools.List() {
		state.TotalTools++
		if t.IsExternal {
			state.ExternalTools++
		}
		if t.IsClassified {
			state.ClassifiedTools++
		}
		if !t.IsExternal || available[t.SourceServerID] {
			state.AvailableTools++
		}
	}
	if s.queue != nil {
		state.PendingClassify = s.queue.Pending()
	}
	return state
}

// Health summarizes server availability. Servers the operator has left
// DISCONNECTED do not count against health.
func (s *StateService) Health() *api.HealthReport {
	servers := s.registry.List(nil)
	report := &api.HealthReport{
		TotalServers: len(servers),
		CheckedAt:    s.clock.Now(),
	}

	expected := 0
	for _, rec := range servers {
		switch rec.Status {
		case api.StatusConnected:
			expected++
			report.AvailableServers++
		case api.StatusDegraded:
			expected++
			report.AvailableServers++
			report.DegradedServers = append(report.DegradedServers, rec.Name)
		case api.StatusError:
			expected++
			report.ErroredServers = append(report.ErroredServers, rec.Name)
		case api.StatusConnecting:
			expected++
		}
	}

	switch {
	case expected > 0 && report.AvailableServers == 0 && len(report.ErroredServers) > 0:
		report.Status = api.HealthUnhealthy
	case len(report.DegradedServers) > 0 || len(report.ErroredServers) > 0:
		report.Status = api.HealthDegraded
	default:
		report.Status = api.HealthHealthy
	}
	return report
}
