package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/store"
	"mcpgateway/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		req      api.RegisterServerRequest
		insecure bool
		wantCode api.ErrorCode
	}{
		{
			name: "stdio",
			req:  stdioRequest("github"),
		},
		{
			name: "sse https",
			req: api.RegisterServerRequest{Name: "remote", TransportType: "SSE",
				ConnectionConfig: api.ConnectionConfig{URL: "https://example.com/sse"}},
		},
		{
			name: "http with secret reference in url",
			req: api.RegisterServerRequest{Name: "remote", TransportType: "http",
				ConnectionConfig: api.ConnectionConfig{BaseURL: "https://${HOST}/mcp"}},
		},
		{
			name: "sse plain http rejected",
			req: api.RegisterServerRequest{Name: "remote", TransportType: "sse",
				ConnectionConfig: api.ConnectionConfig{URL: "http://example.com/sse"}},
			wantCode: api.CodeValidation,
		},
		{
			name: "sse plain http allowed when insecure",
			req: api.RegisterServerRequest{Name: "remote", TransportType: "sse",
				ConnectionConfig: api.ConnectionConfig{URL: "http://127.0.0.1:9000/sse"}},
			insecure: true,
		},
		{
			name:     "stdio without command",
			req:      api.RegisterServerRequest{Name: "broken", TransportType: "stdio"},
			wantCode: api.CodeValidation,
		},
		{
			name:     "http without base_url",
			req:      api.RegisterServerRequest{Name: "broken", TransportType: "HTTP"},
			wantCode: api.CodeValidation,
		},
		{
			name:     "unknown transport",
			req:      api.RegisterServerRequest{Name: "broken", TransportType: "websocket"},
			wantCode: api.CodeValidation,
		},
		{
			name:     "uppercase name",
			req:      stdioRequest("GitHub"),
			wantCode: api.CodeValidation,
		},
		{
			name:     "name with dot",
			req:      stdioRequest("git.hub"),
			wantCode: api.CodeValidation,
		},
		{
			name:     "name too long",
			req:      stdioRequest("a" + strings.Repeat("b", MaxServerNameLen)),
			wantCode: api.CodeValidation,
		},
		{
			name: "oauth on stdio",
			req: api.RegisterServerRequest{Name: "local", TransportType: "stdio",
				ConnectionConfig: api.ConnectionConfig{Command: "x", OAuth: &api.OAuthConfig{TokenURL: "https://t", ClientID: "c"}}},
			wantCode: api.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewServerRegistry(store.NewMemoryStore(), WithInsecureURLs(tt.insecure))
			rec, err := r.Register(context.Background(), tt.req)
			if tt.wantCode != "" {
				assert.True(t, api.IsCode(err, tt.wantCode), "got %v", err)
				assert.Equal(t, 0, r.Count())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, api.StatusDisconnected, rec.Status)
			assert.NotEmpty(t, rec.ID)
			assert.Equal(t, rec, r.Get(rec.ID))
		})
	}
}

func TestServerRegistry_NameUniqueness(t *testing.T) {
	r := NewServerRegistry(store.NewMemoryStore())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Register(ctx, stdioRequest("github"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if api.IsCode(err, api.CodeServerAlreadyExists) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 19, dupes)
	assert.Equal(t, 1, r.Count())
}

func TestServerRegistry_MaxServers(t *testing.T) {
	r := NewServerRegistry(nil, WithMaxServers(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Register(ctx, stdioRequest(fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
	}
	_, err := r.Register(ctx, stdioRequest("s2"))
	assert.True(t, api.IsCode(err, api.CodeValidation))
	assert.Contains(t, err.Error(), "server limit")
}

func TestServerRegistry_Lookup(t *testing.T) {
	r := NewServerRegistry(nil)
	rec, err := r.Register(context.Background(), stdioRequest("github"))
	require.NoError(t, err)

	byID, err := r.Lookup(rec.ID)
	require.NoError(t, err)
	byName, err := r.Lookup("github")
	require.NoError(t, err)
	assert.Equal(t, byID, byName)

	_, err = r.Lookup("nope")
	assert.True(t, api.IsCode(err, api.CodeServerNotFound))
}

func TestServerRegistry_TransitionsFollowStateMachine(t *testing.T) {
	for _, from := range api.AllStatuses {
		for _, to := range api.AllStatuses {
			if from == to {
				continue
			}
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				r := NewServerRegistry(nil)
				ctx := context.Background()
				rec, err := r.Register(ctx, stdioRequest("s"))
				require.NoError(t, err)

				// force the starting state without validation
				forced := rec.Clone()
				forced.Status = from
				r.byID[rec.ID].rec.Store(forced)

				_, err = r.Transition(ctx, rec.ID, to, nil)
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, r.Get(rec.ID).Status)
				} else {
					assert.True(t, IsTransitionError(err), "got %v", err)
					assert.Equal(t, from, r.Get(rec.ID).Status)
				}
			})
		}
	}
}

func TestServerRegistry_UpdatePersistsAndHooks(t *testing.T) {
	s := store.NewMemoryStore()
	clock := mock.NewMockClock(testEpoch)

	var transitions []string
	r := NewServerRegistry(s, WithRegistryClock(clock), WithTransitionHook(func(rec *api.ServerRecord, from api.ServerStatus) {
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", rec.Name, from, rec.Status))
	}))
	ctx := context.Background()

	rec, err := r.Register(ctx, stdioRequest("github"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = r.Transition(ctx, rec.ID, api.StatusConnecting, nil)
	require.NoError(t, err)

	stored, err := s.GetServer(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusConnecting, stored.Status)
	assert.Equal(t, clock.Now(), stored.UpdatedAt)

	// identity is immutable
	updated, err := r.Update(ctx, rec.ID, func(r *api.ServerRecord) error {
		r.Name = "renamed"
		r.ToolCount = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "github", updated.Name)
	assert.Equal(t, 3, updated.ToolCount)

	// snapshots taken earlier are not mutated
	assert.Equal(t, api.StatusDisconnected, rec.Status)

	assert.Equal(t, []string{"github:->DISCONNECTED", "github:DISCONNECTED->CONNECTING"}, transitions)
}

func TestServerRegistry_LoadResetsStatus(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	first := NewServerRegistry(s)
	a, err := first.Register(ctx, stdioRequest("alpha"))
	require.NoError(t, err)
	req := stdioRequest("beta")
	req.AutoConnect = true
	b, err := first.Register(ctx, req)
	require.NoError(t, err)
	c, err := first.Register(ctx, stdioRequest("gamma"))
	require.NoError(t, err)

	_, err = first.Transition(ctx, a.ID, api.StatusConnecting, nil)
	require.NoError(t, err)
	_, err = first.Transition(ctx, a.ID, api.StatusConnected, nil)
	require.NoError(t, err)

	second := NewServerRegistry(s)
	reconnect, err := second.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, reconnect)
	assert.Equal(t, 3, second.Count())

	for _, id := range []string{a.ID, b.ID, c.ID} {
		assert.Equal(t, api.StatusDisconnected, second.Get(id).Status)
	}
}

func TestServerRegistry_Remove(t *testing.T) {
	s := store.NewMemoryStore()
	r := NewServerRegistry(s)
	ctx := context.Background()

	rec, err := r.Register(ctx, stdioRequest("github"))
	require.NoError(t, err)
	require.NoError(t, s.UpsertTool(ctx, externalTool(rec.ID, "github", "a")))

	ids, err := r.Remove(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"github-a"}, ids)
	assert.Nil(t, r.Get(rec.ID))
	assert.Nil(t, r.GetByName("github"))

	_, err = r.Update(ctx, rec.ID, func(*api.ServerRecord) error { return nil })
	assert.True(t, api.IsCode(err, api.CodeServerNotFound))

	// the name is free again
	_, err = r.Register(ctx, stdioRequest("github"))
	assert.NoError(t, err)
}
