package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"
	"mcpgateway/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultDrainTimeout is how long a graceful disconnect waits for in-flight
// calls before cancelling them.
const DefaultDrainTimeout = 30 * time.Second

// session is one live connection. Only SessionManager touches it.
type session struct {
	client mcpserver.MCPClient

	// ctx is cancelled when the session closes; in-flight calls derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	active   atomic.Int64
	done     chan struct{}
}

// SessionManager owns the table of live sessions. Nothing outside this type
// holds a client handle; callers address sessions by server id.
type SessionManager struct {
	mu           sync.RWMutex
	sessions     map[string]*session
	drainTimeout time.Duration
}

// NewSessionManager creates a session manager. drainTimeout <= 0 uses
// DefaultDrainTimeout.
func NewSessionManager(drainTimeout time.Duration) *SessionManager {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &SessionManager{
		sessions:     make(map[string]*session),
		drainTimeout: drainTimeout,
	}
}

// AttachIfAbsent stores client as the session for serverID. It returns
// false, leaving the table unchanged, when a session already exists; the
// caller then owns and must close client.
func (sm *SessionManager) AttachIfAbsent(serverID string, client mcpserver.MCPClient) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[serverID]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm.sessions[serverID] = &session{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	logging.Debug("SessionManager", "Attached session for server %s", serverID)
	return true
}

// Has reports whether a session exists for serverID, closing or not.
func (sm *SessionManager) Has(serverID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.sessions[serverID]
	return ok
}

// Count returns the number of sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Inflight returns the number of calls currently executing across sessions.
func (sm *SessionManager) Inflight() int64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var n int64
	for _, s := range sm.sessions {
		n += s.active.Load()
	}
	return n
}

// acquire registers an in-flight operation on the session. A missing
// session yields SESSION_NOT_FOUND; a session being closed yields
// SERVER_UNAVAILABLE so that callers do not try to replace it.
func (sm *SessionManager) acquire(serverID string) (*session, error) {
	sm.mu.RLock()
	s := sm.sessions[serverID]
	sm.mu.RUnlock()
	if s == nil {
		return nil, api.ErrSessionNotFound(serverID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, api.NewError(api.CodeServerUnavailable, "session for server %s is closing", serverID)
	}
	s.inflight.Add(1)
	s.active.Add(1)
	return s, nil
}

func (s *session) release() {
	s.active.Add(-1)
	s.inflight.Done()
}

// bind derives a context that is cancelled when either ctx or the session
// ends.
func (s *session) bind(ctx context.Context) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// closedDuringCall converts an error caused by the session closing into
// SERVER_UNAVAILABLE. Other errors pass through.
func (s *session) closedDuringCall(ctx context.Context, serverID string, err error) error {
	if err != nil && s.ctx.Err() != nil && ctx.Err() == nil {
		return api.NewError(api.CodeServerUnavailable,
			"session for server %s was closed while the call was in flight", serverID).WithCause(err)
	}
	return err
}

// CallTool executes a tool on the server's session.
func (sm *SessionManager) CallTool(ctx context.Context, serverID, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	s, err := sm.acquire(serverID)
	if err != nil {
		return nil, err
	}
	defer s.release()

	callCtx, cancel := s.bind(ctx)
	defer cancel()

	res, err := s.client.CallTool(callCtx, name, args)
	return res, s.closedDuringCall(ctx, serverID, err)
}

// ListTools lists the tools of the server's session.
func (sm *SessionManager) ListTools(ctx context.Context, serverID string) ([]mcp.Tool, error) {
	s, err := sm.acquire(serverID)
	if err != nil {
		return nil, err
	}
	defer s.release()

	callCtx, cancel := s.bind(ctx)
	defer cancel()

	tools, err := s.client.ListTools(callCtx)
	return tools, s.closedDuringCall(ctx, serverID, err)
}

// Ping pings the server's session.
func (sm *SessionManager) Ping(ctx context.Context, serverID string) error {
	s, err := sm.acquire(serverID)
	if err != nil {
		return err
	}
	defer s.release()

	callCtx, cancel := s.bind(ctx)
	defer cancel()

	return s.closedDuringCall(ctx, serverID, s.client.Ping(callCtx))
}

// Close ends the session for serverID. With force=false new calls are
// refused immediately and in-flight calls get up to the drain timeout to
// finish; whatever is still running then is cancelled and receives
// SERVER_UNAVAILABLE. With force=true in-flight calls are cancelled at once.
//
// Returns false when there was no session. Concurrent Close calls for the
// same server wait for the first one to finish.
func (sm *SessionManager) Close(serverID string, force bool) bool {
	sm.mu.RLock()
	s := sm.sessions[serverID]
	sm.mu.RUnlock()
	if s == nil {
		return false
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return true
	}
	s.closing = true
	s.mu.Unlock()

	if !force {
		drained := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(drained)
		}()

		timer := time.NewTimer(sm.drainTimeout)
		select {
		case <-drained:
		case <-timer.C:
			logging.Warn("SessionManager", "Drain timeout for server %s, cancelling %d in-flight call(s)",
				serverID, s.active.Load())
		}
		timer.Stop()
	}

	s.cancel()
	if err := s.client.Close(); err != nil {
		logging.Debug("SessionManager", "Error closing session for server %s: %v", serverID, err)
	}

	sm.mu.Lock()
	if sm.sessions[serverID] == s {
		delete(sm.sessions, serverID)
	}
	sm.mu.Unlock()
	close(s.done)

	logging.Debug("SessionManager", "Closed session for server %s (force=%t)", serverID, force)
	return true
}

// CloseAll force-closes every session.
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sm.Close(id, true)
		}(id)
	}
	wg.Wait()
}
