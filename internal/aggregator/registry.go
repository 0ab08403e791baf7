package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"

	"github.com/google/uuid"
)

const (
	// DefaultMaxServers bounds the number of registered servers.
	DefaultMaxServers = 50
	// MaxServerNameLen bounds server names.
	MaxServerNameLen = 64
)

var serverNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// errNoChange aborts an Update without error and without persisting.
var errNoChange = errors.New("no change")

// TransitionError reports an illegal status change.
type TransitionError struct {
	Server string
	From   api.ServerStatus
	To     api.ServerStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition for %s: %s -> %s", e.Server, e.From, e.To)
}

// IsTransitionError reports whether err is a *TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// TransitionFunc observes every status change committed by the registry.
type TransitionFunc func(rec *api.ServerRecord, from api.ServerStatus)

// serverEntry holds one server. mu serializes mutations; rec is swapped
// atomically so that readers never block.
type serverEntry struct {
	mu      sync.Mutex
	removed bool
	rec     atomic.Pointer[api.ServerRecord]
}

// ServerRegistry is the authoritative set of registered servers and the
// gate for every status change.
//
// Lock order is r.mu before entry.mu. Update takes entry.mu only.
type ServerRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*serverEntry
	byName map[string]*serverEntry

	store         api.Store
	clock         Clock
	maxServers    int
	allowInsecure bool
	onTransition  TransitionFunc
}

// RegistryOption configures a ServerRegistry.
type RegistryOption func(*ServerRegistry)

// WithMaxServers overrides DefaultMaxServers.
func WithMaxServers(n int) RegistryOption {
	return func(r *ServerRegistry) {
		if n > 0 {
			r.maxServers = n
		}
	}
}

// WithRegistryClock sets the clock used for timestamps.
func WithRegistryClock(c Clock) RegistryOption {
	return func(r *ServerRegistry) { r.clock = c }
}

// WithInsecureURLs allows http:// endpoints at registration time.
func WithInsecureURLs(allow bool) RegistryOption {
	return func(r *ServerRegistry) { r.allowInsecure = allow }
}

// WithTransitionHook sets the observer for committed status changes.
func WithTransitionHook(fn TransitionFunc) RegistryOption {
	return func(r *ServerRegistry) { r.onTransition = fn }
}

// NewServerRegistry creates a registry persisting through store.
func NewServerRegistry(store api.Store, opts ...RegistryOption) *ServerRegistry {
	r := &ServerRegistry{
		byID:       make(map[string]*serverEntry),
		byName:     make(map[string]*serverEntry),
		store:      store,
		clock:      realClock{},
		maxServers: DefaultMaxServers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and inserts a new server in DISCONNECTED state.
//
// Args:
//   - ctx: Context for the persistence write
//   - req: Registration request; transport_type accepts the lower-case aliases
//
// Returns the stored record, SERVER_ALREADY_EXISTS for a duplicate name, or
// VALIDATION_ERROR for malformed input or when the server limit is reached.
func (r *ServerRegistry) Register(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error) {
	transport, err := api.ParseTransportType(req.TransportType)
	if err != nil {
		return nil, api.ErrValidation("%v", err)
	}
	if err := ValidateServerName(req.Name); err != nil {
		return nil, err
	}
	if err := ValidateConnectionConfig(transport, req.ConnectionConfig, r.allowInsecure); err != nil {
		return nil, err
	}
	if req.HealthCheckURL != "" {
		if err := validateURL("health_check_url", req.HealthCheckURL, true); err != nil {
			return nil, err
		}
	}

	now := r.clock.Now()
	rec := &api.ServerRecord{
		ID:               uuid.NewString(),
		Name:             req.Name,
		TransportType:    transport,
		ConnectionConfig: req.ConnectionConfig.Clone(),
		HealthCheckURL:   req.HealthCheckURL,
		AutoConnect:      req.AutoConnect,
		Status:           api.StatusDisconnected,
		RegisteredAt:     now,
		UpdatedAt:        now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[rec.Name]; exists {
		return nil, api.ErrServerAlreadyExists(rec.Name)
	}
	if len(r.byID) >= r.maxServers {
		return nil, api.ErrValidation("server limit reached (max_servers=%d)", r.maxServers)
	}

	if r.store != nil {
		if err := r.store.CreateServer(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to persist server %s: %w", rec.Name, err)
		}
	}

	entry := &serverEntry{}
	entry.rec.Store(rec)
	r.byID[rec.ID] = entry
	r.byName[rec.Name] = entry

	if r.onTransition != nil {
		r.onTransition(rec, "")
	}

	logging.Info("Registry", "Registered server %s (%s, id=%s)", rec.Name, rec.TransportType, rec.ID)
	return rec, nil
}

// Load replaces the in-memory set with the stored records. Every record is
// reset to DISCONNECTED since no session survives a restart.
//
// Returns the ids of servers that should be connected again: those with
// auto_connect set and those that were CONNECTED or DEGRADED when the
// process stopped.
func (r *ServerRegistry) Load(ctx context.Context) ([]string, error) {
	if r.store == nil {
		return nil, nil
	}
	records, err := r.store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var reconnect []string
	for _, rec := range records {
		if rec.AutoConnect || rec.Status.Available() {
			reconnect = append(reconnect, rec.ID)
		}
		rec.Status = api.StatusDisconnected
		rec.ConsecutiveHealthFailures = 0
		rec.ConnectedAt = nil

		entry := &serverEntry{}
		entry.rec.Store(rec)
		r.byID[rec.ID] = entry
		r.byName[rec.Name] = entry

		if r.onTransition != nil {
			r.onTransition(rec, "")
		}
	}

	logging.Info("Registry", "Loaded %d servers from store", len(records))
	return reconnect, nil
}

// Get returns the snapshot for id, or nil.
func (r *ServerRegistry) Get(id string) *api.ServerRecord {
	r.mu.RLock()
	entry := r.byID[id]
	r.mu.RUnlock()
	if entry == nil {
		return nil
	}
	return entry.rec.Load()
}

// GetByName returns the snapshot for name, or nil.
func (r *ServerRegistry) GetByName(name string) *api.ServerRecord {
	r.mu.RLock()
	entry := r.byName[name]
	r.mu.RUnlock()
	if entry == nil {
		return nil
	}
	return entry.rec.Load()
}

// Lookup resolves a reference that may be either an id or a name.
func (r *ServerRegistry) Lookup(ref string) (*api.ServerRecord, error) {
	if rec := r.Get(ref); rec != nil {
		return rec, nil
	}
	if rec := r.GetByName(ref); rec != nil {
		return rec, nil
	}
	return nil, api.ErrServerNotFound(ref)
}

// List returns snapshots sorted by name. A nil filter returns everything.
func (r *ServerRegistry) List(filter func(*api.ServerRecord) bool) []*api.ServerRecord {
	r.mu.RLock()
	out := make([]*api.ServerRecord, 0, len(r.byID))
	for _, entry := range r.byID {
		rec := entry.rec.Load()
		if filter == nil || filter(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered servers.
func (r *ServerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Update applies fn to a copy of the record and commits it. fn may return
// errNoChange to leave the record untouched. A status change made by fn is
// validated against the state machine and rejected with *TransitionError
// when illegal.
//
// Returns the committed (or unchanged) snapshot.
func (r *ServerRegistry) Update(ctx context.Context, id string, fn func(rec *api.ServerRecord) error) (*api.ServerRecord, error) {
	r.mu.RLock()
	entry := r.byID[id]
	r.mu.RUnlock()
	if entry == nil {
		return nil, api.ErrServerNotFound(id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return nil, api.ErrServerNotFound(id)
	}

	cur := entry.rec.Load()
	next := cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return cur, nil
		}
		return cur, err
	}

	if next.Status != cur.Status && !cur.Status.CanTransitionTo(next.Status) {
		return cur, &TransitionError{Server: cur.Name, From: cur.Status, To: next.Status}
	}

	// identity fields are immutable
	next.ID = cur.ID
	next.Name = cur.Name
	next.RegisteredAt = cur.RegisteredAt
	next.UpdatedAt = r.clock.Now()

	if r.store != nil {
		if err := r.store.UpdateServer(ctx, next); err != nil {
			// the in-memory record stays authoritative; the next update retries the write
			logging.Warn("Registry", "Failed to persist server %s: %v", next.Name, err)
		}
	}

	entry.rec.Store(next)

	if next.Status != cur.Status {
		logging.Info("Registry", "Server %s: %s -> %s", next.Name, cur.Status, next.Status)
		if r.onTransition != nil {
			r.onTransition(next, cur.Status)
		}
	}
	return next, nil
}

// Transition moves a server to status to, applying mutate to the same
// copy. It fails with *TransitionError when the change is illegal.
func (r *ServerRegistry) Transition(ctx context.Context, id string, to api.ServerStatus, mutate func(rec *api.ServerRecord)) (*api.ServerRecord, error) {
	return r.Update(ctx, id, func(rec *api.ServerRecord) error {
		rec.Status = to
		if mutate != nil {
			mutate(rec)
		}
		return nil
	})
}

// Remove deletes a server and, through the store, its tools.
//
// Returns the ids of the tools the store deleted.
func (r *ServerRegistry) Remove(ctx context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.byID[id]
	if entry == nil {
		return nil, api.ErrServerNotFound(id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := entry.rec.Load()

	var toolIDs []string
	if r.store != nil {
		ids, err := r.store.DeleteServer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete server %s: %w", rec.Name, err)
		}
		toolIDs = ids
	}

	entry.removed = true
	delete(r.byID, id)
	delete(r.byName, rec.Name)

	if r.onTransition != nil {
		r.onTransition(&api.ServerRecord{ID: rec.ID, Name: rec.Name}, rec.Status)
	}

	logging.Info("Registry", "Removed server %s (id=%s)", rec.Name, id)
	return toolIDs, nil
}

// ValidateServerName checks the name pattern and length.
func ValidateServerName(name string) error {
	if name == "" {
		return api.ErrValidation("name is required")
	}
	if len(name) > MaxServerNameLen {
		return api.ErrValidation("name must be at most %d characters", MaxServerNameLen)
	}
	if !serverNamePattern.MatchString(name) {
		return api.ErrValidation("name %q must match %s", name, serverNamePattern.String())
	}
	return nil
}

// ValidateConnectionConfig checks the per-transport required fields. URLs
// containing secret references are validated when they are rendered.
func ValidateConnectionConfig(t api.TransportType, cfg api.ConnectionConfig, allowInsecure bool) error {
	switch t {
	case api.TransportStdio:
		if cfg.Command == "" {
			return api.ErrValidation("connection_config.command is required for STDIO")
		}
	case api.TransportSSE:
		if cfg.URL == "" {
			return api.ErrValidation("connection_config.url is required for SSE")
		}
		if err := validateURL("connection_config.url", cfg.URL, allowInsecure); err != nil {
			return err
		}
	case api.TransportHTTP:
		if cfg.BaseURL == "" {
			return api.ErrValidation("connection_config.base_url is required for HTTP")
		}
		if err := validateURL("connection_config.base_url", cfg.BaseURL, allowInsecure); err != nil {
			return err
		}
	default:
		return api.ErrValidation("unsupported transport type %q", t)
	}

	if cfg.OAuth != nil {
		if !t.Remote() {
			return api.ErrValidation("connection_config.oauth is only supported for SSE and HTTP")
		}
		if cfg.OAuth.TokenURL == "" || cfg.OAuth.ClientID == "" {
			return api.ErrValidation("connection_config.oauth requires token_url and client_id")
		}
	}
	return nil
}

func validateURL(field, raw string, allowInsecure bool) error {
	if hasSecretRef(raw) {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return api.ErrValidation("%s %q is not a valid URL", field, raw)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecure {
			return api.ErrValidation("%s must use https", field)
		}
	default:
		return api.ErrValidation("%s has unsupported scheme %q", field, u.Scheme)
	}
	return nil
}

func hasSecretRef(s string) bool {
	return strings.Contains(s, "${") || strings.Contains(s, "{{")
}
