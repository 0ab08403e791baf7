package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"
	"mcpgateway/internal/metrics"
	"mcpgateway/pkg/logging"
	gwstrings "mcpgateway/pkg/strings"
)

// DefaultConnectionTimeout bounds a single connection attempt.
const DefaultConnectionTimeout = 30 * time.Second

// Options configures a Manager. Zero values take the package defaults.
type Options struct {
	Store      api.Store
	Classifier api.Classifier
	Index      api.SearchIndex
	Adapter    mcpserver.Adapter
	Metrics    *metrics.Metrics
	Clock      Clock

	MaxServers        int
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
	DrainTimeout      time.Duration

	HealthInterval     time.Duration
	HealthProbeTimeout time.Duration
	HealthConcurrency  int
	// AutoReconnect schedules a reconnect one health interval after the
	// monitor moves a server to ERROR.
	AutoReconnect bool

	Retry RetryPolicy

	ClassificationWorkers   int
	ClassificationQueueSize int

	// AllowInsecure permits http:// endpoints for SSE and HTTP servers.
	AllowInsecure bool
	// HTTPClient is used for health checks.
	HTTPClient *http.Client
}

// Manager is the aggregator facade used by the HTTP server and the loader.
type Manager struct {
	opts Options

	registry  *ServerRegistry
	sessions  *SessionManager
	tools     *ToolIndex
	queue     *ClassificationQueue
	discovery *Discovery
	resolver  *Resolver
	gateway   *Gateway
	health    *HealthMonitor
	state     *StateService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	connectCancels map[string]context.CancelFunc
	reconnects     map[string]*time.Timer
	started        bool
}

// NewManager builds every component. Nothing runs until Start.
func NewManager(opts Options) (*Manager, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("aggregator: adapter is required")
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = DefaultConnectionTimeout
	}
	opts.Retry = opts.Retry.normalized()

	m := &Manager{
		opts:           opts,
		connectCancels: make(map[string]context.CancelFunc),
		reconnects:     make(map[string]*time.Timer),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.registry = NewServerRegistry(opts.Store,
		WithMaxServers(opts.MaxServers),
		WithRegistryClock(opts.Clock),
		WithInsecureURLs(opts.AllowInsecure),
		WithTransitionHook(func(rec *api.ServerRecord, from api.ServerStatus) {
			opts.Metrics.RecordTransition(string(from), string(rec.Status))
		}),
	)
	m.sessions = NewSessionManager(opts.DrainTimeout)
	m.tools = NewToolIndex()
	m.queue = NewClassificationQueue(m.tools, QueueConfig{
		Classifier: opts.Classifier,
		Index:      opts.Index,
		Store:      opts.Store,
		Metrics:    opts.Metrics,
		Clock:      opts.Clock,
		Workers:    opts.ClassificationWorkers,
		QueueSize:  opts.ClassificationQueueSize,
	})
	m.discovery = NewDiscovery(m.registry, m.sessions, m.tools, m.queue, opts.Store, opts.Index, opts.Metrics, opts.Clock)
	m.resolver = NewResolver(m.registry, m.tools)
	m.gateway = NewGateway(m.resolver, m.registry, m.sessions, m.reopenSession, opts.RequestTimeout, opts.Metrics)
	m.health = NewHealthMonitor(m.registry, m.sessions, HealthConfig{
		Interval:     opts.HealthInterval,
		ProbeTimeout: opts.HealthProbeTimeout,
		Concurrency:  opts.HealthConcurrency,
		HTTPClient:   opts.HTTPClient,
		Metrics:      opts.Metrics,
		Clock:        opts.Clock,
		OnUnhealthy:  m.onUnhealthy,
	})
	m.state = NewStateService(m.registry, m.tools, m.sessions, m.queue, opts.Clock)

	return m, nil
}

// Start restores servers and tools from the store, starts the background
// workers and reconnects servers that were connected or marked auto_connect.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	reconnect, err := m.registry.Load(ctx)
	if err != nil {
		return err
	}
	if m.opts.Store != nil {
		tools, err := m.opts.Store.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tools: %w", err)
		}
		m.tools.Load(tools)
	}

	m.queue.Start(m.ctx)
	m.health.Start(m.ctx)

	for _, id := range reconnect {
		m.connectAsync(id)
	}

	logging.Info("Aggregator", "Started with %d servers, %d tools", m.registry.Count(), m.tools.Len())
	return nil
}

// Stop shuts the aggregator down: health monitoring stops, pending connects
// are cancelled, every session is force-closed and the classification queue
// drains until ctx ends. Server statuses are not rewritten, so the next
// Start knows which servers were connected.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		m.cancel()
		return nil
	}
	m.started = false
	for id, t := range m.reconnects {
		t.Stop()
		delete(m.reconnects, id)
	}
	m.mu.Unlock()

	m.health.Stop()
	m.cancel()
	m.wg.Wait()
	m.sessions.CloseAll()
	m.queue.Stop(ctx)

	logging.Info("Aggregator", "Stopped")
	return nil
}

// Registry exposes the server registry.
func (m *Manager) Registry() *ServerRegistry { return m.registry }

// Tools exposes the tool index.
func (m *Manager) Tools() *ToolIndex { return m.tools }

// Register adds a server. With auto_connect the connection starts in the
// background and the DISCONNECTED record is returned immediately.
func (m *Manager) Register(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error) {
	rec, err := m.registry.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if rec.AutoConnect {
		m.connectAsync(rec.ID)
	}
	return rec.Redacted(), nil
}

// GetServer returns the redacted record for an id or name.
func (m *Manager) GetServer(ref string) (*api.ServerRecord, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}
	return rec.Redacted(), nil
}

// ListServers returns redacted records, optionally filtered by status.
func (m *Manager) ListServers(status api.ServerStatus) []*api.ServerRecord {
	var filter func(*api.ServerRecord) bool
	if status != "" {
		filter = func(r *api.ServerRecord) bool { return r.Status == status }
	}
	records := m.registry.List(filter)
	out := make([]*api.ServerRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Redacted())
	}
	return out
}

// ListServerTools returns a server's tools. They are listed only while the
// server is CONNECTED or DEGRADED.
func (m *Manager) ListServerTools(ref string) ([]*api.ToolRecord, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Available() {
		return []*api.ToolRecord{}, nil
	}
	return m.tools.ListByServer(rec.ID), nil
}

// Catalog returns the external tools whose servers are CONNECTED or
// DEGRADED, ordered by namespaced name.
func (m *Manager) Catalog() []*api.ToolRecord {
	available := make(map[string]bool)
	for _, rec := range m.registry.List(func(r *api.ServerRecord) bool { return r.Status.Available() }) {
		available[rec.ID] = true
	}
	var out []*api.ToolRecord
	for _, t := range m.tools.List() {
		if t.IsExternal && available[t.SourceServerID] {
			out = append(out, t)
		}
	}
	return out
}

// RefreshTools re-runs discovery for a CONNECTED server.
func (m *Manager) RefreshTools(ctx context.Context, ref string) (*api.RefreshResult, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}
	return m.discovery.Discover(ctx, rec.ID)
}

// Connect opens a session to the server and runs discovery. It is
// idempotent: a CONNECTED or DEGRADED server is returned as is, and a
// server already CONNECTING is returned without starting a second attempt.
//
// The attempt runs on the manager's context, so it continues if ctx ends
// first; ctx only bounds how long the caller waits.
func (m *Manager) Connect(ctx context.Context, ref string) (*api.ServerRecord, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}

	started := false
	rec, err = m.registry.Update(ctx, rec.ID, func(r *api.ServerRecord) error {
		switch r.Status {
		case api.StatusConnected, api.StatusDegraded, api.StatusConnecting:
			return errNoChange
		}
		r.Status = api.StatusConnecting
		r.ErrorMessage = ""
		started = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !started {
		return rec.Redacted(), nil
	}

	attemptCtx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.connectCancels[rec.ID] = cancel
	m.mu.Unlock()

	type outcome struct {
		rec *api.ServerRecord
		err error
	}
	done := make(chan outcome, 1)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.connectCancels, rec.ID)
			m.mu.Unlock()
			cancel()
		}()
		r, err := m.runConnect(attemptCtx, rec)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if o.rec != nil {
			o.rec = o.rec.Redacted()
		}
		return o.rec, o.err
	case <-ctx.Done():
		return m.registry.Get(rec.ID).Redacted(), ctx.Err()
	}
}

// Reconnect closes any session the server still has and connects again.
func (m *Manager) Reconnect(ctx context.Context, ref string) (*api.ServerRecord, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if rec.Status == api.StatusError {
		m.sessions.Close(rec.ID, true)
	}
	return m.Connect(ctx, rec.ID)
}

func (m *Manager) connectAsync(id string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.Connect(m.ctx, id); err != nil && m.ctx.Err() == nil {
			logging.Warn("Aggregator", "Background connect of %s failed: %v", id, err)
		}
	}()
}

// runConnect performs the retried open, attaches the session, commits
// CONNECTED and runs discovery. rec is the CONNECTING snapshot.
func (m *Manager) runConnect(ctx context.Context, rec *api.ServerRecord) (*api.ServerRecord, error) {
	var client mcpserver.MCPClient

	err := m.opts.Retry.Do(ctx, func(ctx context.Context) error {
		openCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectionTimeout)
		defer cancel()

		c, err := m.opts.Adapter.Open(openCtx, rec)
		if err != nil {
			m.opts.Metrics.RecordConnectAttempt(rec.Name, "failure")
			return err
		}
		m.opts.Metrics.RecordConnectAttempt(rec.Name, "success")
		client = c
		return nil
	}, func(attempt int, err error, next time.Duration) {
		logging.Warn("Aggregator", "Connect attempt %d to %s failed, retrying in %s: %v", attempt, rec.Name, next, err)
	})

	if err != nil {
		if ctx.Err() != nil {
			// cancelled by disconnect, remove or shutdown; they own the status
			return m.registry.Get(rec.ID), api.ErrServerConnectionFailed(rec.Name, ctx.Err())
		}
		cur, uerr := m.registry.Update(context.Background(), rec.ID, func(r *api.ServerRecord) error {
			if r.Status != api.StatusConnecting {
				return errNoChange
			}
			r.Status = api.StatusError
			r.ErrorMessage = gwstrings.ErrorMessage(err)
			return nil
		})
		if uerr != nil {
			logging.Error("Aggregator", uerr, "Failed to record connection failure for %s", rec.Name)
		}
		logging.Error("Aggregator", err, "Failed to connect to %s after %d attempts", rec.Name, m.opts.Retry.MaxAttempts)
		return cur, api.ErrServerConnectionFailed(rec.Name, err)
	}

	if !m.sessions.AttachIfAbsent(rec.ID, client) {
		_ = client.Close()
	}

	cur, err := m.registry.Update(ctx, rec.ID, func(r *api.ServerRecord) error {
		if r.Status != api.StatusConnecting {
			return fmt.Errorf("server %s left %s while connecting (now %s)", r.Name, api.StatusConnecting, r.Status)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		now := m.opts.Clock.Now()
		r.Status = api.StatusConnected
		r.ConnectedAt = &now
		r.ConsecutiveHealthFailures = 0
		r.ErrorMessage = ""
		return nil
	})
	if err != nil {
		m.sessions.Close(rec.ID, true)
		return cur, api.ErrServerConnectionFailed(rec.Name, err)
	}

	logging.Info("Aggregator", "Connected to %s", rec.Name)

	if _, err := m.discovery.Discover(ctx, rec.ID); err != nil {
		logging.Warn("Aggregator", "Tool discovery for %s failed: %v", rec.Name, err)
	}
	return m.registry.Get(rec.ID), nil
}

// reopenSession is the gateway's one-shot recovery for a CONNECTED server
// without a session.
func (m *Manager) reopenSession(ctx context.Context, serverID string) error {
	rec := m.registry.Get(serverID)
	if rec == nil {
		return api.ErrServerNotFound(serverID)
	}
	if !rec.Status.Available() {
		return api.ErrServerUnavailable(rec.Name, rec.Status)
	}

	openCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectionTimeout)
	defer cancel()

	client, err := m.opts.Adapter.Open(openCtx, rec)
	if err != nil {
		m.opts.Metrics.RecordConnectAttempt(rec.Name, "failure")
		return err
	}
	m.opts.Metrics.RecordConnectAttempt(rec.Name, "success")
	if !m.sessions.AttachIfAbsent(serverID, client) {
		_ = client.Close()
	}
	return nil
}

// onUnhealthy runs when the health monitor moved a server to ERROR.
func (m *Manager) onUnhealthy(rec *api.ServerRecord) {
	m.sessions.Close(rec.ID, true)
	logging.Warn("Aggregator", "Server %s marked %s after %d failed health checks",
		rec.Name, api.StatusError, rec.ConsecutiveHealthFailures)

	if !m.opts.AutoReconnect {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	if t, ok := m.reconnects[rec.ID]; ok {
		t.Stop()
	}
	m.reconnects[rec.ID] = time.AfterFunc(m.health.Interval(), func() {
		m.mu.Lock()
		delete(m.reconnects, rec.ID)
		running := m.started
		m.mu.Unlock()
		if !running {
			return
		}

		cur := m.registry.Get(rec.ID)
		if cur == nil || cur.Status != api.StatusError {
			return
		}
		logging.Info("Aggregator", "Reconnecting %s", cur.Name)
		if _, err := m.Reconnect(m.ctx, rec.ID); err != nil && m.ctx.Err() == nil {
			logging.Warn("Aggregator", "Reconnect of %s failed: %v", cur.Name, err)
		}
	})
}

// Disconnect closes the server's session and leaves it DISCONNECTED with
// its tools retained. force=false lets in-flight calls drain first.
func (m *Manager) Disconnect(ctx context.Context, ref string, force bool) (*api.ServerRecord, error) {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}
	m.stopBackground(rec.ID)

	m.sessions.Close(rec.ID, force)

	rec, err = m.registry.Update(ctx, rec.ID, func(r *api.ServerRecord) error {
		if r.Status == api.StatusDisconnected {
			return errNoChange
		}
		r.Status = api.StatusDisconnected
		r.ConsecutiveHealthFailures = 0
		r.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Aggregator", "Disconnected %s (force=%t)", rec.Name, force)
	return rec.Redacted(), nil
}

// stopBackground cancels the server's pending reconnect, in-flight connect
// attempt and in-flight health probe.
func (m *Manager) stopBackground(id string) {
	m.mu.Lock()
	if t, ok := m.reconnects[id]; ok {
		t.Stop()
		delete(m.reconnects, id)
	}
	if cancel, ok := m.connectCancels[id]; ok {
		cancel()
	}
	m.mu.Unlock()

	m.health.CancelProbe(id)
}

// Remove force-disconnects the server, deletes it and cascades the
// deletion to its tools in the catalog, the store and the search index.
func (m *Manager) Remove(ctx context.Context, ref string) error {
	rec, err := m.registry.Lookup(ref)
	if err != nil {
		return err
	}
	if _, err := m.Disconnect(ctx, rec.ID, true); err != nil && !api.IsCode(err, api.CodeServerNotFound) {
		return err
	}

	storeIDs, err := m.registry.Remove(ctx, rec.ID)
	if err != nil {
		return err
	}
	indexIDs := m.tools.RemoveServer(rec.ID)
	m.opts.Metrics.SetServerTools(rec.Name, -1)

	ids := mergeIDs(storeIDs, indexIDs)
	if m.opts.Index != nil && len(ids) > 0 {
		if err := m.opts.Index.Delete(ctx, ids); err != nil {
			logging.Warn("Aggregator", "Failed to remove tools of %s from index: %v", rec.Name, err)
		}
	}
	logging.Info("Aggregator", "Removed %s and %d tools", rec.Name, len(ids))
	return nil
}

// Call routes and executes a tool call.
func (m *Manager) Call(ctx context.Context, req api.CallToolRequest) (*api.CallToolResponse, error) {
	return m.gateway.Call(ctx, req)
}

// Search filters the unified catalog.
func (m *Manager) Search(req api.SearchRequest) []api.SearchResult {
	return Search(m.registry, m.tools, req)
}

// State returns the aggregator snapshot.
func (m *Manager) State() *api.AggregatorState {
	return m.state.State()
}

// Health returns the aggregator health report.
func (m *Manager) Health() *api.HealthReport {
	return m.state.Health()
}

// SweepHealth runs one health pass immediately.
func (m *Manager) SweepHealth(ctx context.Context) {
	m.health.Sweep(ctx)
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}
