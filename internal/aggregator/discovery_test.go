package aggregator

import (
	"context"
	"testing"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/store"
	"mcpgateway/internal/testing/mock"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discoveryFixture struct {
	store     *store.MemoryStore
	registry  *ServerRegistry
	sessions  *SessionManager
	tools     *ToolIndex
	queue     *ClassificationQueue
	index     *fakeIndex
	discovery *Discovery
}

func newDiscoveryFixture() *discoveryFixture {
	clock := mock.NewMockClock(testEpoch)
	f := &discoveryFixture{
		store:    store.NewMemoryStore(),
		sessions: NewSessionManager(time.Second),
		tools:    NewToolIndex(),
		index:    newFakeIndex(),
	}
	f.registry = NewServerRegistry(f.store, WithRegistryClock(clock))
	f.queue = NewClassificationQueue(f.tools, QueueConfig{Index: f.index})
	f.discovery = NewDiscovery(f.registry, f.sessions, f.tools, f.queue, f.store, f.index, nil, clock)
	return f
}

func TestDiscovery_NamespacesAndCounts(t *testing.T) {
	f := newDiscoveryFixture()
	c := newFakeClient("create_issue", "list_repos", "v2.search")
	rec := registerConnected(t, f.registry, f.sessions, "github", c)

	res, err := f.discovery.Discover(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, &api.RefreshResult{ServerID: rec.ID, ToolCount: 3, Added: 3}, res)

	assert.Equal(t, 3, f.registry.Get(rec.ID).ToolCount)
	tool := f.tools.Get("github.v2.search")
	require.NotNil(t, tool)
	assert.Equal(t, "v2.search", tool.OriginalName)
	assert.True(t, tool.IsExternal)
	assert.Equal(t, rec.ID, tool.SourceServerID)
	assert.NotEmpty(t, tool.ContentHash)
	assert.Contains(t, string(tool.InputSchema), `"type":"object"`)

	stored, err := f.store.ListToolsByServer(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, 3, f.queue.Pending())
}

func TestDiscovery_IsIdempotentAndPrunes(t *testing.T) {
	f := newDiscoveryFixture()
	ctx := context.Background()
	c := newFakeClient("a", "b", "c")
	rec := registerConnected(t, f.registry, f.sessions, "srv", c)

	_, err := f.discovery.Discover(ctx, rec.ID)
	require.NoError(t, err)
	first := f.tools.Get("srv.b")

	res, err := f.discovery.Discover(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Unchanged)
	assert.Zero(t, res.Added+res.Updated+res.Removed)

	removedID := f.tools.Get("srv.c").ID
	c.setTools(
		mcp.NewTool("a", mcp.WithDescription("tool a")),
		mcp.NewTool("b", mcp.WithDescription("now different")),
	)
	res, err = f.discovery.Discover(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, &api.RefreshResult{ServerID: rec.ID, ToolCount: 2, Updated: 1, Removed: 1, Unchanged: 1}, res)

	updated := f.tools.Get("srv.b")
	assert.Equal(t, first.ID, updated.ID, "ids survive rediscovery")
	assert.Equal(t, first.DiscoveredAt, updated.DiscoveredAt)
	assert.Equal(t, "now different", updated.Description)

	assert.Nil(t, f.tools.Get("srv.c"))
	assert.Contains(t, f.index.deletedIDs(), removedID)
	stored, err := f.store.ListToolsByServer(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, 2, f.registry.Get(rec.ID).ToolCount)
}

func TestDiscovery_EmptyList(t *testing.T) {
	f := newDiscoveryFixture()
	rec := registerConnected(t, f.registry, f.sessions, "empty", newFakeClient())

	res, err := f.discovery.Discover(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ToolCount)
	assert.Equal(t, 0, f.registry.Get(rec.ID).ToolCount)
}

func TestDiscovery_RequiresConnected(t *testing.T) {
	f := newDiscoveryFixture()
	c := newFakeClient("a")
	rec := registerConnected(t, f.registry, f.sessions, "srv", c)
	_, err := f.registry.Transition(context.Background(), rec.ID, api.StatusDegraded, nil)
	require.NoError(t, err)

	_, err = f.discovery.Discover(context.Background(), rec.ID)
	assert.True(t, api.IsCode(err, api.CodeServerUnavailable))
	assert.Equal(t, int32(0), c.lists.Load())

	_, err = f.discovery.Discover(context.Background(), "missing")
	assert.True(t, api.IsCode(err, api.CodeServerNotFound))
}

func TestDiscovery_SkipsCollidingTools(t *testing.T) {
	f := newDiscoveryFixture()
	rec := registerConnected(t, f.registry, f.sessions, "srv", newFakeClient("a", "b"))

	// a tool with the same exposed name owned by another server
	squatter := externalTool("other-id", "srv", "a")
	require.NoError(t, f.tools.Upsert(squatter))

	res, err := f.discovery.Discover(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.ToolCount)
	assert.Equal(t, "other-id", f.tools.Get("srv.a").SourceServerID)
}

func TestContentHash(t *testing.T) {
	a := contentHash("desc", []byte(`{"type":"object"}`))
	assert.Equal(t, a, contentHash("desc", []byte(`{"type":"object"}`)))
	assert.NotEqual(t, a, contentHash("desc2", []byte(`{"type":"object"}`)))
	assert.NotEqual(t, a, contentHash("desc", []byte(`{"type":"string"}`)))
}
