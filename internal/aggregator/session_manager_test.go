package aggregator

import (
	"context"
	"testing"
	"time"

	"mcpgateway/internal/api"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingClient returns a client whose calls signal started and then
// wait for release or their context.
func blockingClient(started chan<- struct{}, release <-chan struct{}) *fakeClient {
	c := newFakeClient("slow")
	c.callFn = func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
		started <- struct{}{}
		select {
		case <-release:
			return mcp.NewToolResultText("done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c
}

func TestSessionManager_AttachIfAbsent(t *testing.T) {
	sm := NewSessionManager(time.Second)
	a, b := newFakeClient(), newFakeClient()

	assert.True(t, sm.AttachIfAbsent("s1", a))
	assert.False(t, sm.AttachIfAbsent("s1", b))
	assert.True(t, sm.Has("s1"))
	assert.Equal(t, 1, sm.Count())

	_, err := sm.CallTool(context.Background(), "s1", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestSessionManager_MissingSession(t *testing.T) {
	sm := NewSessionManager(time.Second)

	_, err := sm.CallTool(context.Background(), "nope", "x", nil)
	assert.True(t, api.IsCode(err, api.CodeSessionNotFound))
	_, err = sm.ListTools(context.Background(), "nope")
	assert.True(t, api.IsCode(err, api.CodeSessionNotFound))
	assert.False(t, sm.Close("nope", true))
}

func TestSessionManager_GracefulCloseDrains(t *testing.T) {
	sm := NewSessionManager(5 * time.Second)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c := blockingClient(started, release)
	require.True(t, sm.AttachIfAbsent("s1", c))

	result := make(chan error, 1)
	go func() {
		_, err := sm.CallTool(context.Background(), "s1", "slow", nil)
		result <- err
	}()
	<-started
	assert.Equal(t, int64(1), sm.Inflight())

	closed := make(chan struct{})
	go func() {
		sm.Close("s1", false)
		close(closed)
	}()

	require.Eventually(t, func() bool { return isClosing(sm, "s1") }, time.Second, 5*time.Millisecond)

	// new calls are refused while draining
	_, err := sm.CallTool(context.Background(), "s1", "slow", nil)
	assert.True(t, api.IsCode(err, api.CodeServerUnavailable), "got %v", err)

	close(release)
	require.NoError(t, <-result)
	<-closed

	assert.False(t, sm.Has("s1"))
	assert.True(t, c.closed.Load())
}

func TestSessionManager_DrainTimeoutCancelsCalls(t *testing.T) {
	sm := NewSessionManager(50 * time.Millisecond)
	started := make(chan struct{}, 1)
	c := blockingClient(started, make(chan struct{}))
	require.True(t, sm.AttachIfAbsent("s1", c))

	result := make(chan error, 1)
	go func() {
		_, err := sm.CallTool(context.Background(), "s1", "slow", nil)
		result <- err
	}()
	<-started

	start := time.Now()
	assert.True(t, sm.Close("s1", false))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	err := <-result
	assert.True(t, api.IsCode(err, api.CodeServerUnavailable), "got %v", err)
	assert.Equal(t, int64(0), sm.Inflight())
}

func TestSessionManager_ForceCloseCancelsImmediately(t *testing.T) {
	sm := NewSessionManager(time.Hour)
	started := make(chan struct{}, 1)
	c := blockingClient(started, make(chan struct{}))
	require.True(t, sm.AttachIfAbsent("s1", c))

	result := make(chan error, 1)
	go func() {
		_, err := sm.CallTool(context.Background(), "s1", "slow", nil)
		result <- err
	}()
	<-started

	sm.Close("s1", true)

	select {
	case err := <-result:
		assert.True(t, api.IsCode(err, api.CodeServerUnavailable), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("call was not cancelled")
	}
}

func TestSessionManager_CloseAll(t *testing.T) {
	sm := NewSessionManager(time.Second)
	clients := []*fakeClient{newFakeClient(), newFakeClient(), newFakeClient()}
	for i, c := range clients {
		require.True(t, sm.AttachIfAbsent(string(rune('a'+i)), c))
	}

	sm.CloseAll()

	assert.Equal(t, 0, sm.Count())
	for _, c := range clients {
		assert.True(t, c.closed.Load())
	}
}

func isClosing(sm *SessionManager, serverID string) bool {
	sm.mu.RLock()
	s := sm.sessions[serverID]
	sm.mu.RUnlock()
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
