package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/mcpserver"
	"mcpgateway/internal/store"
	"mcpgateway/internal/testing/mock"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClient is a scripted MCPClient.
type fakeClient struct {
	mu      sync.Mutex
	tools   []mcp.Tool
	listErr error
	callFn  func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	calls  atomic.Int32
	lists  atomic.Int32
	closed atomic.Bool
}

func newFakeClient(tools ...string) *fakeClient {
	c := &fakeClient{}
	for _, name := range tools {
		c.tools = append(c.tools, mcp.NewTool(name, mcp.WithDescription("tool "+name)))
	}
	return c
}

func (c *fakeClient) Initialize(ctx context.Context) error { return nil }

func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.lists.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]mcp.Tool(nil), c.tools...), nil
}

func (c *fakeClient) setTools(tools ...mcp.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = tools
}

func (c *fakeClient) setListErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

func (c *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.calls.Add(1)
	if c.callFn != nil {
		return c.callFn(ctx, name, args)
	}
	return mcp.NewToolResultText("called " + name), nil
}

func (c *fakeClient) Ping(ctx context.Context) error { return nil }

var _ mcpserver.MCPClient = (*fakeClient)(nil)

// fakeAdapter hands out clients by server name.
type fakeAdapter struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	errs    map[string]error
	opens   map[string]int
	block   chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		clients: make(map[string]*fakeClient),
		errs:    make(map[string]error),
		opens:   make(map[string]int),
	}
}

func (a *fakeAdapter) set(name string, c *fakeClient) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[name] = c
	delete(a.errs, name)
}

func (a *fakeAdapter) fail(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[name] = err
}

func (a *fakeAdapter) openCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens[name]
}

func (a *fakeAdapter) Open(ctx context.Context, server *api.ServerRecord) (mcpserver.MCPClient, error) {
	a.mu.Lock()
	a.opens[server.Name]++
	block := a.block
	err := a.errs[server.Name]
	c := a.clients[server.Name]
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("connection refused")
	}
	return c, nil
}

// fakeClassifier returns a fixed classification or error.
type fakeClassifier struct {
	mu    sync.Mutex
	err   error
	cls   api.Classification
	seen  []string
	delay time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, name, description string, schema json.RawMessage) (api.Classification, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return api.Classification{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, name)
	return f.cls, f.err
}

// fakeIndex records upserts and deletes.
type fakeIndex struct {
	mu       sync.Mutex
	upserted map[string]*api.ToolRecord
	deleted  []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserted: make(map[string]*api.ToolRecord)}
}

func (f *fakeIndex) Upsert(ctx context.Context, tool *api.ToolRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[tool.ID] = tool.Clone()
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.upserted, id)
	}
	return nil
}

func (f *fakeIndex) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.upserted[id]
	return ok
}

func (f *fakeIndex) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func stdioRequest(name string) api.RegisterServerRequest {
	return api.RegisterServerRequest{
		Name:             name,
		TransportType:    "stdio",
		ConnectionConfig: api.ConnectionConfig{Command: "/bin/" + name},
	}
}

// registerConnected registers a server and forces it to CONNECTED with the
// given client attached.
func registerConnected(t *testing.T, r *ServerRegistry, sm *SessionManager, name string, c *fakeClient) *api.ServerRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := r.Register(ctx, stdioRequest(name))
	require.NoError(t, err)
	_, err = r.Transition(ctx, rec.ID, api.StatusConnecting, nil)
	require.NoError(t, err)
	rec, err = r.Transition(ctx, rec.ID, api.StatusConnected, nil)
	require.NoError(t, err)
	if c != nil {
		require.True(t, sm.AttachIfAbsent(rec.ID, c))
	}
	return rec
}

func externalTool(serverID, serverName, name string) *api.ToolRecord {
	return &api.ToolRecord{
		ID:             serverName + "-" + name,
		NamespacedName: Namespace(serverName, name),
		OriginalName:   name,
		Description:    "tool " + name,
		SourceServerID: serverID,
		IsExternal:     true,
		ContentHash:    "h",
	}
}

type testManager struct {
	*Manager
	adapter *fakeAdapter
	store   *store.MemoryStore
	index   *fakeIndex
	clock   *mock.MockClock
}

func newTestManager(t *testing.T, mutate func(*Options)) *testManager {
	t.Helper()
	tm := &testManager{
		adapter: newFakeAdapter(),
		store:   store.NewMemoryStore(),
		index:   newFakeIndex(),
		clock:   mock.NewMockClock(testEpoch),
	}
	opts := Options{
		Store:          tm.store,
		Index:          tm.index,
		Adapter:        tm.adapter,
		Clock:          tm.clock,
		HealthInterval: time.Hour,
		DrainTimeout:   time.Second,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			MaxDelay:    4 * time.Millisecond,
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	if opts.Adapter != tm.adapter {
		tm.adapter = nil
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	tm.Manager = m
	return tm
}
